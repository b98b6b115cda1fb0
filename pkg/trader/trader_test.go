package trader

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/yourusername/quantlink-tick-engine/pkg/config"
	"github.com/yourusername/quantlink-tick-engine/pkg/market"
	"github.com/yourusername/quantlink-tick-engine/pkg/position"
	"github.com/yourusername/quantlink-tick-engine/pkg/risk"
)

func amethystsSnapshot(ts int64, token string) market.Snapshot {
	d := market.NewOrderDepth()
	d.Buy[9995] = 3
	d.Sell[9998] = -5
	d.Sell[10005] = -4
	return market.Snapshot{
		Timestamp:   ts,
		TraderData:  token,
		OrderDepths: map[market.Symbol]market.OrderDepth{"AMETHYSTS": d},
	}
}

func newTestTrader(t *testing.T, modelFile string) *Trader {
	t.Helper()
	cfg := &config.TraderConfig{
		System:   config.SystemConfig{TraderID: "test"},
		Products: []config.ProductConfig{{Symbol: "AMETHYSTS", Limit: 20}},
		Strategies: []config.StrategyItemConfig{{
			ID: "amethysts", Type: "market_maker", Enabled: true,
			Symbols:    []string{"AMETHYSTS"},
			Parameters: map[string]interface{}{"fair_price": 10000},
			ModelFile:  modelFile,
		}},
		API:   config.APIConfig{Enabled: true},
		Store: config.StoreConfig{Enabled: true, Path: filepath.Join(t.TempDir(), "store")},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	tr, err := NewTrader(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	t.Cleanup(func() { tr.Store.Close() })
	return tr
}

func doRequest(t *testing.T, h http.Handler, method, path string, body []byte) (int, APIResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("%s %s: bad body %q: %v", method, path, rec.Body.String(), err)
	}
	return rec.Code, resp
}

func TestNewTrader_NilConfig(t *testing.T) {
	if _, err := NewTrader(nil, nil); err == nil {
		t.Error("NewTrader(nil) should fail")
	}
}

func TestTrader_RunCheckpoints(t *testing.T) {
	tr := newTestTrader(t, "")

	d := tr.Run(amethystsSnapshot(100, ""))
	if d.OrderCount() != 3 {
		t.Errorf("OrderCount() = %d, want 3", d.OrderCount())
	}

	cp, ok, err := tr.Store.LoadCheckpoint("test")
	if err != nil || !ok {
		t.Fatalf("LoadCheckpoint() = %v, %v", ok, err)
	}
	if cp.Token != d.TraderData || cp.Timestamp != 100 {
		t.Errorf("checkpoint = %+v, want token of tick 100", cp)
	}

	got, err := tr.Store.Decisions("test", 0, 10)
	if err != nil || len(got) != 1 || got[0].Timestamp != 100 {
		t.Errorf("Decisions() = %v, %v", got, err)
	}
}

func TestTrader_ResumeOnce(t *testing.T) {
	tr := newTestTrader(t, "")
	first := tr.Run(amethystsSnapshot(100, ""))

	// 模拟重启：重新打开恢复开关
	tr.resume = true
	token, ok := tr.resumeToken()
	if !ok || token != first.TraderData {
		t.Errorf("resumeToken() = %q, %v, want checkpointed token", token, ok)
	}
	if _, ok := tr.resumeToken(); ok {
		t.Error("resumeToken() should only resume once")
	}
}

func TestAPI_HealthAndStatus(t *testing.T) {
	tr := newTestTrader(t, "")
	h := tr.APIServer.Handler()

	code, resp := doRequest(t, h, "GET", "/api/v1/health", nil)
	if code != http.StatusOK || !resp.Success {
		t.Errorf("health = %d %+v", code, resp)
	}

	code, resp = doRequest(t, h, "GET", "/api/v1/status", nil)
	if code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	status, ok := resp.Data.(map[string]interface{})
	if !ok || status["trader_id"] != "test" || status["store"] != true {
		t.Errorf("status = %v", resp.Data)
	}
}

func TestAPI_TickAndDecisions(t *testing.T) {
	tr := newTestTrader(t, "")
	h := tr.APIServer.Handler()

	for _, ts := range []int64{100, 200, 300} {
		body, _ := json.Marshal(amethystsSnapshot(ts, ""))
		code, resp := doRequest(t, h, "POST", "/api/v1/tick", body)
		if code != http.StatusOK || !resp.Success {
			t.Fatalf("tick %d = %d %+v", ts, code, resp)
		}
	}

	code, resp := doRequest(t, h, "POST", "/api/v1/tick", []byte("{not json"))
	if code != http.StatusBadRequest || resp.Success {
		t.Errorf("bad snapshot = %d %+v", code, resp)
	}

	tests := []struct {
		query string
		code  int
		want  int
	}{
		{"", http.StatusOK, 3},
		{"?from=200", http.StatusOK, 2},
		{"?from=0&limit=1", http.StatusOK, 1},
		{"?limit=0", http.StatusBadRequest, 0},
		{"?from=x", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			code, resp := doRequest(t, h, "GET", "/api/v1/decisions"+tt.query, nil)
			if code != tt.code {
				t.Fatalf("code = %d, want %d", code, tt.code)
			}
			if tt.code != http.StatusOK {
				return
			}
			list, _ := resp.Data.([]interface{})
			if len(list) != tt.want {
				t.Errorf("decisions = %d, want %d", len(list), tt.want)
			}
		})
	}
}

func TestAPI_ModelReload(t *testing.T) {
	model := filepath.Join(t.TempDir(), "amethysts.model")
	if err := os.WriteFile(model, []byte("FAIR_PRICE 10000\nTHRESHOLD 0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	tr := newTestTrader(t, model)
	h := tr.APIServer.Handler()

	code, resp := doRequest(t, h, "POST", "/api/v1/model/reload", nil)
	if code != http.StatusOK || !resp.Success {
		t.Fatalf("reload = %d %+v", code, resp)
	}

	if err := os.WriteFile(model, []byte("MODEL neural\n"), 0644); err != nil {
		t.Fatal(err)
	}
	code, resp = doRequest(t, h, "POST", "/api/v1/model/reload", nil)
	if code != http.StatusInternalServerError || resp.Success {
		t.Errorf("bad model reload = %d %+v", code, resp)
	}

	// 失败的重载不影响当前策略链
	if d := tr.Run(amethystsSnapshot(100, "")); d.OrderCount() != 3 {
		t.Errorf("OrderCount() after failed reload = %d, want 3", d.OrderCount())
	}

	history := tr.ModelWatcher.GetHistory(0)
	if len(history) != 2 || !history[0].Success || history[1].Success {
		t.Errorf("history = %+v", history)
	}
	if got := tr.ModelWatcher.GetHistory(1); len(got) != 1 || got[0].Success {
		t.Errorf("GetHistory(1) = %+v", got)
	}

	code, resp = doRequest(t, h, "GET", "/api/v1/model/status", nil)
	if code != http.StatusOK || !resp.Success {
		t.Errorf("model status = %d %+v", code, resp)
	}
}

func TestWebSocketHub_PublishWhenStopped(t *testing.T) {
	hub := NewWebSocketHub(nil)
	hub.Publish(market.Decision{Timestamp: 1})
	if len(hub.broadcast) != 0 {
		t.Error("stopped hub should not queue decisions")
	}

	hub.Start()
	defer hub.Stop()
	for i := 0; i < 500; i++ {
		hub.Publish(market.Decision{Timestamp: int64(i)})
	}
	if hub.Clients() != 0 {
		t.Errorf("Clients() = %d, want 0", hub.Clients())
	}
}

func TestTrader_EmergencyStop(t *testing.T) {
	tr := newTestTrader(t, "")
	tr.Config.Risk.EmergencyStopThreshold = 1
	tr.Risk = risk.NewMonitor(risk.MonitorConfig{EmergencyStopThreshold: 1},
		position.NewLimits(tr.Config.Limits()), nil)

	// 人为构造一次净持仓超限
	over := &market.Snapshot{Positions: map[market.Symbol]int{"AMETHYSTS": 20}}
	tr.Risk.Inspect(over, &market.Decision{Orders: map[market.Symbol][]market.Order{
		"AMETHYSTS": {{Symbol: "AMETHYSTS", Price: 9998, Quantity: 1}},
	}})

	d := tr.Run(amethystsSnapshot(100, ""))
	if d.OrderCount() != 0 || d.Conversions != 0 {
		t.Errorf("orders during emergency stop = %d", d.OrderCount())
	}
	if d.TraderData == "" {
		t.Error("token must still be returned")
	}

	h := tr.APIServer.Handler()
	code, resp := doRequest(t, h, "GET", "/api/v1/risk/alerts?level=critical", nil)
	if code != http.StatusOK || !resp.Success {
		t.Fatalf("risk alerts = %d %+v", code, resp)
	}
	if code, _ := doRequest(t, h, "POST", "/api/v1/risk/reset", nil); code != http.StatusOK {
		t.Errorf("risk reset = %d", code)
	}
	if d := tr.Run(amethystsSnapshot(200, "")); d.OrderCount() != 3 {
		t.Errorf("OrderCount() after reset = %d, want 3", d.OrderCount())
	}
}
