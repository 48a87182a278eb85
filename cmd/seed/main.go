package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/rs/zerolog"

	"payment-flows/internal/config"
	"payment-flows/internal/domain/model"
	"payment-flows/internal/domain/ports/adapter"
	gwadapters "payment-flows/internal/infra/adapters/gateway"
	"payment-flows/internal/infra/adapters/refdoc"
	pg "payment-flows/internal/infra/db/postgres"
	"payment-flows/internal/usecase"
)

// memLocker is good enough for a single seeding process.
type memLocker struct{}

func (memLocker) TryLock(ctx context.Context, key string, ttl, wait time.Duration) (string, error) {
	return "seed", nil
}
func (memLocker) Unlock(ctx context.Context, key, token string) error { return nil }

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	count := flag.Int("n", 3, "number of demo records to seed")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	recordRepo := pg.NewRecordRepo(pool)
	mandateRepo := pg.NewMandateRepo(pool)
	tm := pg.NewTxManager(pool)

	registry := gwadapters.NewRegistry()
	registry.Register("noop", gwadapters.NewNoopGateway("noop", "noop-secret"))

	silent := zerolog.New(io.Discard)
	flowUC := usecase.NewFlowUseCase(recordRepo, mandateRepo, registry, refdoc.NewRegistry(), memLocker{}, tm,
		adapter.NoopFlowMetrics{}, usecase.FlowConfig{BaseURL: cfg.Server.BaseURL}, &silent)

	for i := 0; i < *count; i++ {
		name, err := flowUC.Initiate(ctx, "noop", demoTxData(i), "", "")
		if err != nil {
			log.Fatalf("initiate demo record: %v", err)
		}
		proceeded, err := flowUC.Proceed(ctx, name, nil)
		if err != nil {
			log.Fatalf("proceed demo record %s: %v", name, err)
		}
		fmt.Printf("seeded: %s (gateway=noop, flow_type=%s, amount=%d %s)\n",
			name, proceeded.FlowType, proceeded.TxData.Amount, proceeded.TxData.Currency)
	}

	fmt.Println("✅ Seeding complete.")
}

func demoTxData(i int) model.TxData {
	return model.TxData{
		Amount:           int64(1000 * (i + 1)),
		Currency:         "EUR",
		ReferenceDocType: "demo_order",
		ReferenceDocID:   fmt.Sprintf("DEMO-%04d", i+1),
		PayerContact:     map[string]interface{}{"email": fmt.Sprintf("demo%d@example.test", i+1)},
	}
}
