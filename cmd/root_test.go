package cmd

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/placement-engine/internal/placement"
	"github.com/spigell/placement-engine/internal/store"
)

func TestConfigDefaultsAndOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	err := v.ReadConfig(strings.NewReader(`
http:
  addr: ":9090"
  cors-origins: ["https://tpo.example.edu"]
ai:
  timeout: 5s
  gemini:
    model: gemini-test
`))
	if err != nil {
		t.Fatalf("reading config: %v", err)
	}

	var config *Config
	if err := v.Unmarshal(&config); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if config.HTTP.Addr != ":9090" || config.HTTP.WriteTimeout != 120*time.Second {
		t.Fatalf("unexpected http config %+v", config.HTTP)
	}
	if len(config.HTTP.CORSOrigins) != 1 || config.HTTP.CORSOrigins[0] != "https://tpo.example.edu" {
		t.Fatalf("unexpected cors origins %v", config.HTTP.CORSOrigins)
	}
	if config.AI.Timeout != 5*time.Second || config.AI.Gemini.Model != "gemini-test" || config.AI.Provider != "gemini" {
		t.Fatalf("unexpected ai config %+v", config.AI)
	}
	if config.Store.Driver != driverMemory || config.Extract.MaxBytes != 5<<20 {
		t.Fatalf("unexpected defaults: store=%+v extract=%+v", config.Store, config.Extract)
	}
}

func TestOpenStore(t *testing.T) {
	st, closeFn, err := openStore(context.Background(), &StoreConfig{Driver: "memory"}, zap.NewNop())
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer closeFn()
	if _, ok := st.(*store.Memory); !ok {
		t.Fatalf("expected memory store, got %T", st)
	}

	if _, _, err := openStore(context.Background(), &StoreConfig{Driver: "sqlite"}, zap.NewNop()); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

func TestNewJudgeRejectsUnknownProvider(t *testing.T) {
	_, err := newJudge(context.Background(), &AIConfig{
		Provider: "openai",
		Gemini:   &GeminiConfig{APIKey: "key"},
	}, zap.NewNop())
	if err == nil || !strings.Contains(err.Error(), "unsupported ai provider") {
		t.Fatalf("expected unsupported provider error, got %v", err)
	}
}

func TestNewJudgeRequiresKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	if _, err := newJudge(context.Background(), &AIConfig{Provider: "gemini"}, zap.NewNop()); err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestApplicationLabel(t *testing.T) {
	label := applicationLabel(&placement.Application{ID: "app-1", ResumeScore: 7, StudentID: "stu", MissingSkills: []string{"Go", "SQL"}})
	if label != "app-1   7% student=stu missing=Go,SQL" {
		t.Fatalf("unexpected label %q", label)
	}
}
