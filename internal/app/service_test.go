package service_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/okian/dropout/internal/adapters/mq/queue"
	"github.com/okian/dropout/internal/adapters/mq/worker"
	service "github.com/okian/dropout/internal/app"
	"github.com/okian/dropout/internal/domain/model"
	"github.com/okian/dropout/internal/domain/scoring"
	"github.com/okian/dropout/internal/domain/stats"
	"github.com/okian/dropout/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

func payload(g, a, i any) map[string]any {
	return map[string]any{"calificaciones": g, "asistencia": a, "incidentes_comportamiento": i}
}

func TestService_New(t *testing.T) {
	Convey("Given service construction", t, func() {
		Convey("When artifacts are missing", func() {
			_, err := service.New(nil)

			Convey("Then it should fail", func() {
				So(errors.Is(err, service.ErrNoArtifacts), ShouldBeTrue)
			})
		})

		Convey("When artifacts are provided", func() {
			svc, err := service.New(artifacts(incidentModel()), service.WithLogger(logger.Get()))

			Convey("Then versions should be exposed", func() {
				So(err, ShouldBeNil)
				So(svc.ModelVersion(), ShouldEqual, "model-test")
				So(svc.ScalerVersion(), ShouldEqual, "scaler-test")
				So(svc.AuditEnabled(), ShouldBeFalse)
			})
		})
	})
}

func TestService_Infer(t *testing.T) {
	Convey("Given a service with a deterministic model", t, func() {
		ctx := context.Background()
		fixed := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
		svc, err := service.New(artifacts(incidentModel()), service.WithClock(func() time.Time { return fixed }))
		So(err, ShouldBeNil)

		Convey("When scoring a student with many incidents", func() {
			res, err := svc.Infer(ctx, payload(20.0, 60.0, 8.0))

			Convey("Then a high risk result should be returned", func() {
				So(err, ShouldBeNil)
				So(res.Probability, ShouldAlmostEqual, 0.8)
				So(res.Tier, ShouldEqual, model.RiskHigh)
				So(res.GeneratedAt, ShouldEqual, fixed)
			})
		})

		Convey("When the probability lands exactly on a threshold", func() {
			low, errLow := svc.Infer(ctx, payload(70.0, 90.0, 3.0))
			mid, errMid := svc.Infer(ctx, payload(70.0, 90.0, 7.0))

			Convey("Then the lower tier should be used", func() {
				So(errLow, ShouldBeNil)
				So(errMid, ShouldBeNil)
				So(low.Probability, ShouldEqual, 0.3)
				So(low.Tier, ShouldEqual, model.RiskLow)
				So(mid.Probability, ShouldEqual, 0.7)
				So(mid.Tier, ShouldEqual, model.RiskMedium)
			})
		})

		Convey("When every feature is zero", func() {
			res, err := svc.Infer(ctx, payload(0, 0, 0))

			Convey("Then the pipeline should not fail", func() {
				So(err, ShouldBeNil)
				So(res.Probability, ShouldEqual, 0)
				So(res.Tier, ShouldEqual, model.RiskLow)
			})
		})

		Convey("When the same payload is scored twice", func() {
			a, errA := svc.Infer(ctx, payload(55.5, 80.0, 2.0))
			b, errB := svc.Infer(ctx, payload(55.5, 80.0, 2.0))

			Convey("Then probability and tier should match", func() {
				So(errA, ShouldBeNil)
				So(errB, ShouldBeNil)
				So(a.Probability, ShouldEqual, b.Probability)
				So(a.Tier, ShouldEqual, b.Tier)
			})
		})

		Convey("When grades is missing", func() {
			_, err := svc.Infer(ctx, map[string]any{"asistencia": 50.0, "incidentes_comportamiento": 2.0})

			Convey("Then a validation error should name grades", func() {
				var ve *service.ValidationError
				So(errors.As(err, &ve), ShouldBeTrue)
				So(ve.Field, ShouldEqual, "calificaciones")
				So(ve.Message, ShouldEqual, "Campo requerido faltante: calificaciones")
			})
		})

		Convey("When grades is out of range", func() {
			_, err := svc.Infer(ctx, payload(150.0, 50.0, 2.0))

			Convey("Then the message should reference the grades range", func() {
				var ve *service.ValidationError
				So(errors.As(err, &ve), ShouldBeTrue)
				So(ve.Message, ShouldEqual, "Calificaciones debe estar entre 0 y 100")
			})
		})
	})
}

func TestService_InferFailures(t *testing.T) {
	Convey("Given failing pipeline steps", t, func() {
		ctx := context.Background()

		cases := []struct {
			name  string
			model *funcModel
		}{
			{"the model returns an error", &funcModel{fn: func(model.ScaledFeatureVector) (float64, error) { return 0, errors.New("session lost") }}},
			{"the model panics", &funcModel{fn: func(model.ScaledFeatureVector) (float64, error) { panic("index out of range") }}},
			{"the model returns NaN", &funcModel{fn: func(model.ScaledFeatureVector) (float64, error) { return math.NaN(), nil }}},
			{"the model returns above one", &funcModel{fn: func(model.ScaledFeatureVector) (float64, error) { return 1.5, nil }}},
			{"the model returns below zero", &funcModel{fn: func(model.ScaledFeatureVector) (float64, error) { return -0.01, nil }}},
		}

		for _, tc := range cases {
			Convey("When "+tc.name, func() {
				svc, err := service.New(artifacts(tc.model))
				So(err, ShouldBeNil)
				_, err = svc.Infer(ctx, payload(50.0, 50.0, 2.0))

				Convey("Then an internal error should be returned", func() {
					var ie *service.InternalError
					So(errors.As(err, &ie), ShouldBeTrue)
					So(ie.Message, ShouldNotBeEmpty)
					var ve *service.ValidationError
					So(errors.As(err, &ve), ShouldBeFalse)
				})
			})
		}

		Convey("When the scaler fails", func() {
			cause := errors.New("scale overflow")
			svc, err := service.New(&scoring.Artifacts{Scaler: identityScaler{err: cause}, Model: incidentModel()})
			So(err, ShouldBeNil)
			_, err = svc.Infer(ctx, payload(50.0, 50.0, 2.0))

			Convey("Then the cause should be wrapped", func() {
				var ie *service.InternalError
				So(errors.As(err, &ie), ShouldBeTrue)
				So(errors.Is(err, cause), ShouldBeTrue)
			})
		})
	})
}

func TestService_PredictionCache(t *testing.T) {
	Convey("Given a service with a prediction cache", t, func() {
		ctx := context.Background()
		m := incidentModel()
		svc, err := service.New(artifacts(m), service.WithPredictionCacheSize(8))
		So(err, ShouldBeNil)

		Convey("When the same features are scored twice", func() {
			a, _ := svc.Infer(ctx, payload(40.0, 70.0, 3.0))
			b, _ := svc.Infer(ctx, payload(40, 70, 3))

			Convey("Then the model should run once and results should match", func() {
				So(m.calls.Load(), ShouldEqual, 1)
				So(a.Probability, ShouldEqual, b.Probability)
			})
		})

		Convey("When different features are scored", func() {
			_, _ = svc.Infer(ctx, payload(40.0, 70.0, 3.0))
			_, _ = svc.Infer(ctx, payload(41.0, 70.0, 3.0))

			Convey("Then the model should run for each", func() {
				So(m.calls.Load(), ShouldEqual, 2)
			})
		})
	})

	Convey("Given a service with the cache disabled", t, func() {
		m := incidentModel()
		svc, err := service.New(artifacts(m), service.WithPredictionCacheSize(0))
		So(err, ShouldBeNil)

		Convey("When the same features are scored twice", func() {
			_, _ = svc.Infer(context.Background(), payload(40.0, 70.0, 3.0))
			_, _ = svc.Infer(context.Background(), payload(40.0, 70.0, 3.0))

			Convey("Then the model should run twice", func() {
				So(m.calls.Load(), ShouldEqual, 2)
			})
		})
	})
}

func TestService_Audit(t *testing.T) {
	Convey("Given a service with an audit store", t, func() {
		ctx := context.Background()
		store := &memoryStore{}
		m := incidentModel()
		svc, err := service.New(artifacts(m), service.WithAuditStore(store))
		So(err, ShouldBeNil)

		Convey("When a prediction succeeds", func() {
			res, err := svc.Infer(ctx, payload(90.0, 95.0, 0.0))
			So(err, ShouldBeNil)

			Convey("Then it should be recorded with the model version", func() {
				recent, err := svc.Recent(ctx, 5)
				So(err, ShouldBeNil)
				So(recent, ShouldHaveLength, 1)
				So(recent[0].ID, ShouldNotBeEmpty)
				So(recent[0].Probability, ShouldEqual, res.Probability)
				So(recent[0].Tier, ShouldEqual, res.Tier)
				So(recent[0].ModelVersion, ShouldEqual, "model-test")
				So(recent[0].Features, ShouldResemble, model.FeatureVector{Grades: 90, Attendance: 95})

				got, err := svc.Prediction(ctx, recent[0].ID)
				So(err, ShouldBeNil)
				So(got, ShouldResemble, recent[0])
			})
		})

		Convey("When a prediction is rejected", func() {
			_, _ = svc.Infer(ctx, payload(-1.0, 95.0, 0.0))

			Convey("Then nothing should be recorded", func() {
				n, _ := store.Count(ctx)
				So(n, ShouldEqual, 0)
			})
		})

		Convey("When the store fails", func() {
			store.failing = true
			res, err := svc.Infer(ctx, payload(90.0, 95.0, 0.0))

			Convey("Then the prediction should still succeed", func() {
				So(err, ShouldBeNil)
				So(res.Tier, ShouldEqual, model.RiskLow)
			})
		})

		Convey("When the service is closed", func() {
			So(svc.Close(), ShouldBeNil)

			Convey("Then the store and model should be closed", func() {
				So(store.closed, ShouldBeTrue)
				So(m.closed.Load(), ShouldBeTrue)
			})
		})
	})

	Convey("Given a service without an audit store", t, func() {
		svc, err := service.New(artifacts(incidentModel()))
		So(err, ShouldBeNil)

		Convey("When asking for recent predictions", func() {
			_, err := svc.Recent(context.Background(), 5)

			Convey("Then audit should be reported disabled", func() {
				So(errors.Is(err, service.ErrAuditDisabled), ShouldBeTrue)
				So(svc.AuditEnabled(), ShouldBeFalse)
				_, err = svc.Prediction(context.Background(), "any")
				So(errors.Is(err, service.ErrAuditDisabled), ShouldBeTrue)
			})
		})
	})
}

func TestService_Stats(t *testing.T) {
	Convey("Given a service with a dataset", t, func() {
		ctx := context.Background()
		rows := []stats.Row{
			{Features: model.FeatureVector{Grades: 80, Attendance: 90, BehaviorIncidents: 1}, Label: 0},
			{Features: model.FeatureVector{Grades: 30, Attendance: 50, BehaviorIncidents: 7}, Label: 1},
			{Features: model.FeatureVector{Grades: 65, Attendance: 85, BehaviorIncidents: 2}, Label: 0},
		}
		svc, err := service.New(artifacts(incidentModel()), service.WithDataset(staticDataset{rows: rows}))
		So(err, ShouldBeNil)

		Convey("When computing statistics", func() {
			snap, err := svc.Stats(ctx)

			Convey("Then totals and rates should reflect every row", func() {
				So(err, ShouldBeNil)
				So(snap.Total, ShouldEqual, 3)
				So(snap.DropoutRate, ShouldAlmostEqual, 1.0/3)
				So(snap.Grades.Median, ShouldEqual, 65)
			})
		})
	})

	Convey("Given a dataset that cannot be read", t, func() {
		cause := errors.New("open student_data.csv: no such file or directory")
		svc, err := service.New(artifacts(incidentModel()), service.WithDataset(staticDataset{err: cause}))
		So(err, ShouldBeNil)

		Convey("When computing statistics", func() {
			_, err := svc.Stats(context.Background())

			Convey("Then a report error should wrap the cause", func() {
				var re *service.ReportError
				So(errors.As(err, &re), ShouldBeTrue)
				So(errors.Is(err, cause), ShouldBeTrue)
			})
		})
	})

	Convey("Given an empty dataset", t, func() {
		svc, err := service.New(artifacts(incidentModel()), service.WithDataset(staticDataset{}))
		So(err, ShouldBeNil)

		Convey("When computing statistics", func() {
			_, err := svc.Stats(context.Background())

			Convey("Then no degraded snapshot should be returned", func() {
				So(errors.Is(err, stats.ErrEmptyDataset), ShouldBeTrue)
			})
		})
	})

	Convey("Given no dataset at all", t, func() {
		svc, err := service.New(artifacts(incidentModel()))
		So(err, ShouldBeNil)

		Convey("When computing statistics", func() {
			_, err := svc.Stats(context.Background())

			Convey("Then it should report the missing dataset", func() {
				So(errors.Is(err, service.ErrNoDataset), ShouldBeTrue)
			})
		})
	})
}

func TestService_Concurrency(t *testing.T) {
	Convey("Given a shared service", t, func() {
		svc, err := service.New(artifacts(incidentModel()), service.WithPredictionCacheSize(4))
		So(err, ShouldBeNil)

		Convey("When many goroutines score concurrently", func() {
			const workers = 16
			results := make([]float64, workers)
			var wg sync.WaitGroup
			for i := range workers {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					res, err := svc.Infer(context.Background(), payload(80.0, 80.0, float64(i%4)))
					if err == nil {
						results[i] = res.Probability
					}
				}(i)
			}
			wg.Wait()

			Convey("Then every result should match its input", func() {
				for i, p := range results {
					So(p, ShouldAlmostEqual, float64(i%4)/10)
				}
			})
		})
	})
}

func TestService_AsyncAudit(t *testing.T) {
	Convey("Given a service writing audit records through worker pool", t, func() {
		ctx := context.Background()
		store := &memoryStore{}
		pool := worker.NewPool(2, queue.NewInMemoryQueue(queue.WithCapacity(16)), store, logger.Nop())
		pool.Start(ctx)
		svc, err := service.New(artifacts(incidentModel()),
			service.WithAuditStore(store),
			service.WithAuditQueue(pool),
		)
		So(err, ShouldBeNil)

		Convey("When several predictions succeed and the service closes", func() {
			for i := 0; i < 5; i++ {
				_, err := svc.Infer(ctx, payload(80.0, 90.0, float64(i)))
				So(err, ShouldBeNil)
			}
			So(svc.Close(), ShouldBeNil)

			Convey("Then every record should be drained before the store closes", func() {
				n, _ := store.Count(ctx)
				So(n, ShouldEqual, 5)
				So(store.closed, ShouldBeTrue)
			})
		})
	})

	Convey("Given a service whose audit queue is full", t, func() {
		store := &memoryStore{}
		svc, err := service.New(artifacts(incidentModel()),
			service.WithAuditStore(store),
			service.WithAuditQueue(fullQueue{}),
		)
		So(err, ShouldBeNil)

		Convey("When a prediction succeeds", func() {
			res, err := svc.Infer(context.Background(), payload(90.0, 95.0, 0.0))

			Convey("Then the record should be dropped without failing the prediction", func() {
				So(err, ShouldBeNil)
				So(res.Tier, ShouldEqual, model.RiskLow)
				n, _ := store.Count(context.Background())
				So(n, ShouldEqual, 0)
			})
		})
	})
}
