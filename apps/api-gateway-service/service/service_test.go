package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgtalk/api/rest"
	"orgtalk/apps/api-gateway-service/dao"
	"orgtalk/pkg/auth"
	"orgtalk/pkg/logger"
)

func newTestService(t *testing.T) (*Service, dao.DirectoryDAO) {
	t.Helper()
	directoryDAO := dao.NewMemoryDirectoryDAO()
	log, err := logger.NewLogger("error")
	require.NoError(t, err)
	svc := NewService(directoryDAO, nil, NewProxyRouter(nil, log), log, "test-secret")
	return svc, directoryDAO
}

func TestImportDirectoryValidRows(t *testing.T) {
	svc, directoryDAO := newTestService(t)

	result, err := svc.ImportDirectory(context.Background(), []rest.DirectoryImportRow{
		{ServiceNumber: "SN-1001", Name: "张伟", Rank: "上尉", Unit: "一营", Phone: "13800000001"},
		{ServiceNumber: "SN-1002", Name: "李娜", Unit: "二营"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	assert.Empty(t, result.Failed)

	entry, err := directoryDAO.GetByServiceNumber(context.Background(), "SN-1001")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "张伟", entry.Name)
	assert.Equal(t, "一营", entry.Unit)
}

func TestImportDirectorySkipsBadRows(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.ImportDirectory(context.Background(), []rest.DirectoryImportRow{
		{ServiceNumber: "SN-2001", Name: "王芳"},
		{ServiceNumber: "", Name: "无服务号"},
		{ServiceNumber: "SN-2003", Name: ""},
		{ServiceNumber: "bad number!", Name: "格式非法"},
		{ServiceNumber: "SN-2005", Name: "赵强"},
	})
	require.NoError(t, err)

	// 坏行跳过，好行照常导入
	assert.Equal(t, 2, result.Imported)
	require.Len(t, result.Failed, 3)

	// 失败行号从1开始计
	assert.Equal(t, 2, result.Failed[0].Row)
	assert.Equal(t, 3, result.Failed[1].Row)
	assert.Equal(t, 4, result.Failed[2].Row)
	for _, fail := range result.Failed {
		assert.NotEmpty(t, fail.Reason)
	}
}

func TestImportDirectoryUpsertOverwrites(t *testing.T) {
	svc, directoryDAO := newTestService(t)
	ctx := context.Background()

	_, err := svc.ImportDirectory(ctx, []rest.DirectoryImportRow{
		{ServiceNumber: "SN-3001", Name: "旧名", Rank: "中尉"},
	})
	require.NoError(t, err)

	_, err = svc.ImportDirectory(ctx, []rest.DirectoryImportRow{
		{ServiceNumber: "SN-3001", Name: "新名", Rank: "上尉"},
	})
	require.NoError(t, err)

	entry, err := directoryDAO.GetByServiceNumber(ctx, "SN-3001")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "新名", entry.Name)
	assert.Equal(t, "上尉", entry.Rank)
}

func TestIssueTokenRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.ImportDirectory(ctx, []rest.DirectoryImportRow{
		{ServiceNumber: "SN-4001", Name: "孙敏"},
	})
	require.NoError(t, err)

	token, entry, err := svc.IssueToken(ctx, "SN-4001")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.NotNil(t, entry)

	claims, err := auth.ValidateJWT(token, "test-secret")
	require.NoError(t, err)
	assert.Equal(t, entry.ID, claims.UserID)
	assert.Equal(t, "SN-4001", claims.ServiceNumber)
}

func TestIssueTokenUnknownServiceNumber(t *testing.T) {
	svc, _ := newTestService(t)

	_, _, err := svc.IssueToken(context.Background(), "SN-9999")
	assert.Error(t, err)
}

func TestSearchDirectoryPaging(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	rows := []rest.DirectoryImportRow{
		{ServiceNumber: "SN-5001", Name: "周杰", Unit: "通信连"},
		{ServiceNumber: "SN-5002", Name: "吴磊", Unit: "通信连"},
		{ServiceNumber: "SN-5003", Name: "郑爽", Unit: "警卫连"},
	}
	_, err := svc.ImportDirectory(ctx, rows)
	require.NoError(t, err)

	entries, total, err := svc.SearchDirectory(ctx, "通信连", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, entries, 1)
	assert.Equal(t, "SN-5001", entries[0].ServiceNumber)

	entries, _, err = svc.SearchDirectory(ctx, "通信连", 2, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "SN-5002", entries[0].ServiceNumber)
}
