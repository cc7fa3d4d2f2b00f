// Package dbtest はPostgreSQLを使う統合テストの共通ヘルパーを提供する。
package dbtest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const postgresImage = "postgres:16-alpine"

// URL はテスト用のデータベースURLを返す。
// 環境変数 TEST_DATABASE_URL が設定されていればそれを使用し、
// 未設定の場合はtestcontainersでPostgreSQLコンテナを起動する。
// -short 指定時やDockerが利用できない場合はテストをスキップする。
func URL(t *testing.T) string {
	t.Helper()

	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		return url
	}
	if testing.Short() {
		t.Skip("PostgreSQL統合テストは -short 指定時にスキップする")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ctr, err := postgres.Run(ctx, postgresImage,
		postgres.WithDatabase("sessiongate_test"),
		postgres.WithUsername("sessiongate"),
		postgres.WithPassword("sessiongate"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("PostgreSQLコンテナの起動に失敗: %v", err)
	}

	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("接続文字列の取得に失敗: %v", err)
	}
	return url
}
