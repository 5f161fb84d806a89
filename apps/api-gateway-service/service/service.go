package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"orgtalk/api/rest"
	"orgtalk/apps/api-gateway-service/dao"
	"orgtalk/apps/api-gateway-service/model"
	"orgtalk/pkg/auth"
	"orgtalk/pkg/client"
	"orgtalk/pkg/logger"
)

// serviceNumberPattern 服务号格式：字母数字和连字符
var serviceNumberPattern = regexp.MustCompile(`^[A-Za-z0-9-]{3,32}$`)

const tokenTTL = 24 * time.Hour

// Service API网关业务：通讯录管理、签发token、聚合查询
type Service struct {
	dao       dao.DirectoryDAO
	clients   *client.ClientManager
	router    *ProxyRouter
	logger    logger.Logger
	jwtSecret string
}

// NewService 创建服务实例，clients为nil时聚合查询不可用
func NewService(directoryDAO dao.DirectoryDAO, clients *client.ClientManager, router *ProxyRouter,
	log logger.Logger, jwtSecret string) *Service {
	return &Service{
		dao:       directoryDAO,
		clients:   clients,
		router:    router,
		logger:    log,
		jwtSecret: jwtSecret,
	}
}

// ImportDirectory 批量导入通讯录，逐行校验，坏行跳过不拖垮整批
func (s *Service) ImportDirectory(ctx context.Context, rows []rest.DirectoryImportRow) (*rest.DirectoryImportResult, error) {
	result := &rest.DirectoryImportResult{}
	for i, row := range rows {
		if reason := validateRow(&row); reason != "" {
			result.Failed = append(result.Failed, rest.DirectoryImportFail{Row: i + 1, Reason: reason})
			continue
		}

		entry := &model.DirectoryEntry{
			ServiceNumber: strings.TrimSpace(row.ServiceNumber),
			Name:          strings.TrimSpace(row.Name),
			Rank:          strings.TrimSpace(row.Rank),
			Unit:          strings.TrimSpace(row.Unit),
			Phone:         strings.TrimSpace(row.Phone),
		}
		if err := s.dao.Upsert(ctx, entry); err != nil {
			s.logger.Error(ctx, "导入通讯录条目失败",
				logger.F("service_number", entry.ServiceNumber),
				logger.F("error", err.Error()))
			result.Failed = append(result.Failed, rest.DirectoryImportFail{Row: i + 1, Reason: "写入失败"})
			continue
		}
		result.Imported++
	}
	return result, nil
}

// validateRow 单行校验，返回空串表示通过
func validateRow(row *rest.DirectoryImportRow) string {
	serviceNumber := strings.TrimSpace(row.ServiceNumber)
	if serviceNumber == "" {
		return "服务号不能为空"
	}
	if !serviceNumberPattern.MatchString(serviceNumber) {
		return "服务号格式非法"
	}
	if strings.TrimSpace(row.Name) == "" {
		return "姓名不能为空"
	}
	return ""
}

// GetEntry 按服务号查询通讯录条目
func (s *Service) GetEntry(ctx context.Context, serviceNumber string) (*model.DirectoryEntry, error) {
	entry, err := s.dao.GetByServiceNumber(ctx, serviceNumber)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("服务号不存在: %s", serviceNumber)
	}
	return entry, nil
}

// SearchDirectory 通讯录模糊查询
func (s *Service) SearchDirectory(ctx context.Context, keyword string, page, size int) ([]*model.DirectoryEntry, int64, error) {
	return s.dao.Search(ctx, keyword, page, size)
}

// IssueToken 为编制内服务号签发JWT，用户ID取通讯录条目ID
func (s *Service) IssueToken(ctx context.Context, serviceNumber string) (string, *model.DirectoryEntry, error) {
	entry, err := s.dao.GetByServiceNumber(ctx, serviceNumber)
	if err != nil {
		return "", nil, err
	}
	if entry == nil {
		return "", nil, fmt.Errorf("服务号不存在: %s", serviceNumber)
	}

	token, err := auth.GenerateJWT(entry.ID, entry.ServiceNumber, s.jwtSecret, tokenTTL)
	if err != nil {
		return "", nil, fmt.Errorf("签发token失败: %w", err)
	}
	return token, entry, nil
}

// Overview 聚合用户首屏数据：会话快照加在线状态，部分失败不阻塞整体
// authorization为调用方原始凭证，透传给下游服务
func (s *Service) Overview(ctx context.Context, userID int64, authorization string) (map[string]interface{}, error) {
	if s.clients == nil {
		return nil, fmt.Errorf("聚合查询不可用")
	}

	overview := map[string]interface{}{"user_id": userID}

	if addr, err := s.router.Resolve("conversation-service"); err == nil {
		cli := s.clients.GetClient("conversation-service", "http://"+addr)
		var snapshot rest.SnapshotResponse
		path := fmt.Sprintf("/api/v1/conversations/snapshot?user_id=%d", userID)
		if err := cli.GetJSONWithAuth(ctx, path, authorization, &snapshot); err != nil {
			s.logger.Warn(ctx, "聚合会话快照失败", logger.F("error", err.Error()))
		} else {
			overview["conversations"] = snapshot.Conversations
		}
	}

	if addr, err := s.router.Resolve("presence-service"); err == nil {
		cli := s.clients.GetClient("presence-service", "http://"+addr)
		var status rest.PresenceStatus
		path := fmt.Sprintf("/api/v1/presence/%d", userID)
		if err := cli.GetJSONWithAuth(ctx, path, authorization, &status); err != nil {
			s.logger.Warn(ctx, "聚合在线状态失败", logger.F("error", err.Error()))
		} else {
			overview["presence"] = status
		}
	}

	return overview, nil
}
