package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/dropout/internal/adapters/repository"
	"github.com/okian/dropout/internal/config"
	"github.com/okian/dropout/internal/domain/scoring"
	"github.com/okian/dropout/pkg/logger"
)

const testScaler = `{
  "version": "scaler-main",
  "feature_names": ["calificaciones", "asistencia", "incidentes_comportamiento"],
  "mean": [70, 85, 2],
  "scale": [15, 10, 1.4]
}`

const testModel = `{
  "version": "model-main",
  "layers": [
    {"type": "dense", "kernel": [[-1.5], [-1.0], [1.2]], "bias": [-0.4], "activation": "sigmoid"}
  ]
}`

const testData = `calificaciones,asistencia,incidentes_comportamiento,desercion
88,95,0,0
45,62,6,1
71,84,2,0
`

func writeFixtures(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return path
	}
	cfg := config.New()
	cfg.ModelPath = write("dropout_model.json", testModel)
	cfg.ScalerPath = write("scaler.json", testScaler)
	cfg.DatasetPath = write("student_data.csv", testData)
	cfg.AuditDBPath = filepath.Join(dir, "audit.db")
	return cfg
}

func TestBuildService(t *testing.T) {
	convey.Convey("Given configuration pointing at valid artifacts", t, func() {
		ctx := context.Background()
		cfg := writeFixtures(t)

		convey.Convey("When building the service", func() {
			svc, err := buildService(ctx, cfg, logger.Nop())
			convey.So(err, convey.ShouldBeNil)
			defer func() { _ = svc.Close() }()

			convey.Convey("Then artifact versions and audit should be wired", func() {
				convey.So(svc.ModelVersion(), convey.ShouldEqual, "model-main")
				convey.So(svc.ScalerVersion(), convey.ShouldEqual, "scaler-main")
				convey.So(svc.AuditEnabled(), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When audit writes go through the background queue", func() {
			cfg.AuditQueueSize = 8
			cfg.AuditWorkers = 2
			svc, err := buildService(ctx, cfg, logger.Nop())
			convey.So(err, convey.ShouldBeNil)

			for i := 0; i < 3; i++ {
				_, err := svc.Infer(ctx, map[string]any{
					"calificaciones": 60.0, "asistencia": 75.0, "incidentes_comportamiento": float64(i),
				})
				convey.So(err, convey.ShouldBeNil)
			}
			convey.So(svc.Close(), convey.ShouldBeNil)

			convey.Convey("Then closing should drain every record to the database", func() {
				store, err := repository.OpenSQLite(ctx, cfg.AuditDBPath)
				convey.So(err, convey.ShouldBeNil)
				defer func() { _ = store.Close() }()
				n, err := store.Count(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(n, convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When a required file is missing", func() {
			cases := []struct {
				artifact string
				mutate   func(*config.Config)
			}{
				{scoring.ArtifactModel, func(c *config.Config) { c.ModelPath += ".missing" }},
				{scoring.ArtifactScaler, func(c *config.Config) { c.ScalerPath += ".missing" }},
				{scoring.ArtifactDataset, func(c *config.Config) { c.DatasetPath += ".missing" }},
			}
			for _, tc := range cases {
				broken := *cfg
				tc.mutate(&broken)
				_, err := buildService(ctx, &broken, logger.Nop())

				var startup *scoring.StartupError
				convey.So(errors.As(err, &startup), convey.ShouldBeTrue)
				convey.So(startup.Artifact, convey.ShouldEqual, tc.artifact)
				convey.So(errors.Is(err, scoring.ErrArtifactMissing), convey.ShouldBeTrue)
			}
		})

		convey.Convey("When the dataset encoding is unknown", func() {
			cfg.DatasetEncoding = "ebcdic"
			_, err := buildService(ctx, cfg, logger.Nop())

			convey.Convey("Then startup should fail on the dataset", func() {
				var startup *scoring.StartupError
				convey.So(errors.As(err, &startup), convey.ShouldBeTrue)
				convey.So(startup.Artifact, convey.ShouldEqual, scoring.ArtifactDataset)
			})
		})
	})
}

func TestHTTPServer(t *testing.T) {
	convey.Convey("Given a fully wired HTTP server", t, func() {
		ctx := context.Background()
		cfg := writeFixtures(t)
		svc, err := buildService(ctx, cfg, logger.Nop())
		convey.So(err, convey.ShouldBeNil)
		convey.Reset(func() { _ = svc.Close() })

		srv := newHTTPServer(ctx, cfg, svc, logger.Nop())

		convey.Convey("Then it should carry the configured timeouts", func() {
			convey.So(srv.Addr, convey.ShouldEqual, cfg.Addr)
			convey.So(srv.ReadHeaderTimeout, convey.ShouldEqual, readHeaderTimeout)
			convey.So(srv.WriteTimeout, convey.ShouldEqual, writeTimeout)
		})

		convey.Convey("When a prediction is posted", func() {
			req := httptest.NewRequest(http.MethodPost, "/predict",
				strings.NewReader(`{"calificaciones": 35, "asistencia": 55, "incidentes_comportamiento": 7}`))
			w := httptest.NewRecorder()
			srv.Handler.ServeHTTP(w, req)

			convey.Convey("Then it should be scored and audited", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				var body map[string]any
				convey.So(json.Unmarshal(w.Body.Bytes(), &body), convey.ShouldBeNil)
				convey.So(body["riesgo"], convey.ShouldEqual, "Alto")

				list := httptest.NewRecorder()
				srv.Handler.ServeHTTP(list, httptest.NewRequest(http.MethodGet, "/predictions?limit=1", http.NoBody))
				convey.So(list.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(list.Body.String(), convey.ShouldContainSubstring, `"version_modelo":"model-main"`)
			})
		})

		convey.Convey("When a grade overflows float64", func() {
			req := httptest.NewRequest(http.MethodPost, "/predict",
				strings.NewReader(`{"calificaciones": 1e400, "asistencia": 55, "incidentes_comportamiento": 7}`))
			w := httptest.NewRecorder()
			srv.Handler.ServeHTTP(w, req)

			convey.Convey("Then the range message should be reported", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusBadRequest)
				convey.So(w.Body.String(), convey.ShouldContainSubstring, "Calificaciones debe estar entre 0 y 100")
			})
		})

		convey.Convey("When the docs and stats are requested", func() {
			for _, path := range []string{"/api-docs", "/openapi.yaml", "/stats", "/health", "/metrics"} {
				w := httptest.NewRecorder()
				srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			}
		})
	})
}

func TestRun(t *testing.T) {
	convey.Convey("Given environment configuration for a full process", t, func() {
		cfg := writeFixtures(t)
		env := map[string]string{
			"DROPOUT_ADDR":         "127.0.0.1:0",
			"DROPOUT_MODEL_PATH":   cfg.ModelPath,
			"DROPOUT_SCALER_PATH":  cfg.ScalerPath,
			"DROPOUT_DATASET_PATH": cfg.DatasetPath,
		}
		for k, v := range env {
			t.Setenv(k, v)
		}

		convey.Convey("When the context is cancelled after startup", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
			defer cancel()
			err := run(ctx)

			convey.Convey("Then it should shut down cleanly", func() {
				convey.So(err, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the model is missing", func() {
			t.Setenv("DROPOUT_MODEL_PATH", cfg.ModelPath+".gone")
			err := run(context.Background())

			convey.Convey("Then a startup error should be returned", func() {
				var startup *scoring.StartupError
				convey.So(errors.As(err, &startup), convey.ShouldBeTrue)
			})
		})
	})
}

func TestConfigureLogger(t *testing.T) {
	convey.Convey("Given logger configuration", t, func() {
		convey.Convey("When the format is unknown", func() {
			cfg := config.New()
			cfg.LogFormat = "xml"

			convey.Convey("Then it should be rejected as invalid config", func() {
				convey.So(errors.Is(configureLogger(cfg), config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the level is unknown", func() {
			cfg := config.New()
			cfg.LogLevel = "chatty"

			convey.Convey("Then it should fall back to info", func() {
				convey.So(configureLogger(cfg), convey.ShouldBeNil)
				convey.So(logger.Level().String(), convey.ShouldEqual, "info")
			})
		})

		convey.Convey("When a log file is configured", func() {
			cfg := config.New()
			cfg.LogFormat = "json"
			cfg.LogFile = filepath.Join(t.TempDir(), "dropout.log")

			convey.Convey("Then initialization should succeed", func() {
				convey.So(configureLogger(cfg), convey.ShouldBeNil)
				logger.Get().Info(context.Background(), "file sink ready")
				_ = logger.Sync()
				_, err := os.Stat(cfg.LogFile)
				convey.So(err, convey.ShouldBeNil)
			})
		})
	})
}

func TestSystemMetrics(t *testing.T) {
	convey.Convey("Given the system metrics updater", t, func() {
		convey.Convey("When updating once", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
		})

		convey.Convey("When the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				startSystemMetricsUpdater(ctx, 10*time.Millisecond)
				close(done)
			}()
			time.Sleep(30 * time.Millisecond)
			cancel()

			convey.Convey("Then the updater should stop", func() {
				select {
				case <-done:
				case <-time.After(time.Second):
					convey.So("updater still running", convey.ShouldBeEmpty)
				}
			})
		})
	})

	convey.Convey("Given no config file", t, func() {
		t.Setenv("DROPOUT_CONFIG", "")

		convey.Convey("Then watching config should be a no-op", func() {
			convey.So(func() { watchConfig(context.Background(), logger.Nop()) }, convey.ShouldNotPanic)
		})
	})
}
