package pricews

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/shopspring/decimal"

	"github.com/fd1az/perp-router/business/pricing/domain"
	"github.com/fd1az/perp-router/internal/apperror"
	"github.com/fd1az/perp-router/internal/logger"
)

// mockLogger implements logger.LoggerInterface for testing.
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Info(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Warn(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Error(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Debugc(ctx context.Context, caller int, msg string, args ...any) {}
func (m *mockLogger) Infoc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Warnc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Errorc(ctx context.Context, caller int, msg string, args ...any) {}

var _ logger.LoggerInterface = (*mockLogger)(nil)

func sortTicks(ticks []domain.Tick) {
	sort.Slice(ticks, func(i, j int) bool { return ticks[i].Symbol < ticks[j].Symbol })
}

func TestParseFrame(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		want    map[string]string
		wantErr bool
	}{
		{
			name:  "numeric_and_string_prices",
			frame: `{"BTC":{"price":67000.5},"eth":{"price":"3400.25"}}`,
			want:  map[string]string{"BTC": "67000.5", "ETH": "3400.25"},
		},
		{
			name:  "skips_non_price_keys",
			frame: `{"type":"heartbeat","SOL":{"price":150},"id":7}`,
			want:  map[string]string{"SOL": "150"},
		},
		{
			name:  "skips_zero_price",
			frame: `{"BTC":{"price":0}}`,
			want:  map[string]string{},
		},
		{
			name:    "not_an_object",
			frame:   `[1,2,3]`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ticks, err := ParseFrame([]byte(tt.frame))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(ticks) != len(tt.want) {
				t.Fatalf("got %d ticks, want %d", len(ticks), len(tt.want))
			}
			for _, tk := range ticks {
				want, ok := tt.want[tk.Symbol]
				if !ok {
					t.Errorf("unexpected symbol %s", tk.Symbol)
					continue
				}
				if !tk.Price.Equal(decimal.RequireFromString(want)) {
					t.Errorf("%s price = %s, want %s", tk.Symbol, tk.Price, want)
				}
			}
		})
	}
}

func TestClient_StreamsTicksAfterSubscribe(t *testing.T) {
	subscribed := make(chan SubscribeRequest, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		ctx := r.Context()
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var req SubscribeRequest
		if json.Unmarshal(data, &req) == nil {
			select {
			case subscribed <- req:
			default:
			}
		}
		conn.Write(ctx, websocket.MessageText, []byte(`{"BTC":{"price":67000},"ETH":{"price":3400}}`))
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{
		URL:     "ws" + strings.TrimPrefix(server.URL, "http"),
		Symbols: []string{"btc-usd", "ETH", "BTC"},
	}, &mockLogger{})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	var mu sync.Mutex
	var got []domain.Tick
	received := make(chan struct{}, 1)
	client.OnTicks(func(_ context.Context, ticks []domain.Tick) {
		mu.Lock()
		got = append(got, ticks...)
		mu.Unlock()
		select {
		case received <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	select {
	case req := <-subscribed:
		if req.Method != "subscribe" {
			t.Errorf("method = %s, want subscribe", req.Method)
		}
		if strings.Join(req.Symbols, ",") != "BTC,ETH" {
			t.Errorf("symbols = %v, want [BTC ETH]", req.Symbols)
		}
	case <-ctx.Done():
		t.Fatal("no subscribe request")
	}

	select {
	case <-received:
	case <-ctx.Done():
		t.Fatal("no ticks received")
	}

	mu.Lock()
	defer mu.Unlock()
	sortTicks(got)
	if len(got) != 2 || got[0].Symbol != "BTC" || got[1].Symbol != "ETH" {
		t.Fatalf("unexpected ticks: %+v", got)
	}
}

func TestNewClient_RequiresURL(t *testing.T) {
	_, err := NewClient(ClientConfig{}, &mockLogger{})
	if apperror.GetCode(err) != apperror.CodeConfigurationError {
		t.Errorf("expected CONFIGURATION_ERROR, got %v", err)
	}
}

func TestSnapshotClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/down" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"BTC":{"price":"67000.5"}}`))
	}))
	defer server.Close()

	snap, err := NewSnapshotClient(server.URL+"/prices", &mockLogger{})
	if err != nil {
		t.Fatalf("NewSnapshotClient: %v", err)
	}
	ticks, err := snap.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(ticks) != 1 || !ticks[0].Price.Equal(decimal.RequireFromString("67000.5")) {
		t.Fatalf("unexpected ticks: %+v", ticks)
	}

	down, _ := NewSnapshotClient(server.URL+"/down", &mockLogger{})
	if _, err := down.Snapshot(context.Background()); apperror.GetCode(err) != apperror.CodeExternalServiceError {
		t.Errorf("expected EXTERNAL_SERVICE_ERROR, got %v", err)
	}
}
