package assistant

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/farm-connect/internal/advisor"
	"github.com/ashureev/farm-connect/internal/dashboard"
	"github.com/ashureev/farm-connect/internal/identity"
	"github.com/ashureev/farm-connect/internal/llm"
	"github.com/ashureev/farm-connect/internal/llm/llmtest"
	"github.com/ashureev/farm-connect/internal/refdata"
	"github.com/ashureev/farm-connect/internal/store"
)

const testUserID = "anon_0123456789abcdef0123456789abcdef"

type testEnv struct {
	router   chi.Router
	registry *dashboard.Registry
	broker   *Broker
	conns    *ConnManager
	repo     *store.SQLiteStore
	logs     *recordingLogger
}

type recordingLogger struct {
	events chan ConversationLogEvent
}

func (l *recordingLogger) Log(e ConversationLogEvent) {
	select {
	case l.events <- e:
	default:
	}
}

func (l *recordingLogger) Close() error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEnv wires the assistant routes behind a fixed identity. The tab is
// taken from the X-Test-Tab header or the session_id query parameter. A nil
// gen disables AI.
func newTestEnv(t *testing.T, gen *llmtest.Generator, opts ...func(*Options)) *testEnv {
	t.Helper()

	repo, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	catalog, err := refdata.Load()
	require.NoError(t, err)
	var g llm.Generator
	if gen != nil {
		g = gen
	}

	logger := discardLogger()
	broker := NewBroker(logger, WithKeepalive(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	done := broker.Start(ctx)
	t.Cleanup(func() {
		cancel()
		<-done
	})

	logs := &recordingLogger{events: make(chan ConversationLogEvent, 64)}
	conns := NewConnManager()
	registry := dashboard.NewRegistry(advisor.New(g, catalog),
		dashboard.WithLogger(logger),
		dashboard.WithHooks(dashboard.Hooks{
			OnMessage: MessageHook(broker, logs),
			OnEvict:   EvictHook(broker, conns),
		}),
	)

	o := Options{
		Registry: registry,
		Repo:     repo,
		Broker:   broker,
		Conns:    conns,
		IsDev:    true,
		Logger:   logger,
	}
	for _, opt := range opts {
		opt(&o)
	}
	h := NewHandler(o)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			tab := req.Header.Get("X-Test-Tab")
			if tab == "" {
				tab = req.URL.Query().Get(identity.SessionQueryParam)
			}
			next.ServeHTTP(w, req.WithContext(identity.WithIdentity(req.Context(), testUserID, tab)))
		})
	})
	h.RegisterRoutes(r)
	return &testEnv{router: r, registry: registry, broker: broker, conns: conns, repo: repo, logs: logs}
}
