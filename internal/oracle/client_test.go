package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coldroute/internal/model"
)

func completionEnvelope(content string) string {
	env := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
	b, _ := json.Marshal(env)
	return string(b)
}

const validAnswer = `{"start_time":"08:00","totaal_km":42.5,"stops":[` +
	`{"id":"o1","arr":"08:30","act":"D","dur":10,"km":20,"lat":52.1,"lng":4.3},` +
	`{"arr":"09:10","act":"R","dur":0,"km":22.5,"lat":52.0,"lng":4.2}]}`

func testRequest() SequenceRequest {
	return SequenceRequest{
		Vehicle: model.Vehicle{ID: "v1", Type: "van", ChilledCap: 10, FrozenCap: 5},
		Depot:   model.Depot{Name: "Depot", Lat: 52.0, Lng: 4.2},
		Orders: []model.Order{
			{ID: "o1", Name: "Shop", Address: "Main 1", Postcode: "1011AB", City: "Amsterdam", WindowStart: "08:00", WindowEnd: "12:00", ServiceMin: 10, ChilledQty: 3},
		},
		Strategy:     model.StrategyJIT,
		MaxTripHours: 10,
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigMissing)
}

func TestSequenceParsesAnswer(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionEnvelope(validAnswer)))
	}))
	defer ts.Close()

	c, err := NewClient(ClientConfig{BaseURL: ts.URL, APIKey: "test-key"})
	require.NoError(t, err)

	seq, err := c.Sequence(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "08:00", seq.StartTime)
	assert.Equal(t, 42.5, seq.TotalKm)
	require.Len(t, seq.Stops, 2)
	assert.Equal(t, "o1", seq.Stops[0].ID)
	assert.Equal(t, "R", seq.Stops[1].Act)
}

func TestSequenceAcceptsFencedAnswer(t *testing.T) {
	fenced := "```json\n" + validAnswer + "\n```"
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(completionEnvelope(fenced)))
	}))
	defer ts.Close()

	c, err := NewClient(ClientConfig{BaseURL: ts.URL, APIKey: "k"})
	require.NoError(t, err)
	seq, err := c.Sequence(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Len(t, seq.Stops, 2)
}

func TestSequenceRejectsProse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(completionEnvelope("Sure! Here is your route: drive to Main 1 first.")))
	}))
	defer ts.Close()

	c, err := NewClient(ClientConfig{BaseURL: ts.URL, APIKey: "k"})
	require.NoError(t, err)
	_, err = c.Sequence(context.Background(), testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestSequenceRetriesTransientErrors(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(completionEnvelope(validAnswer)))
	}))
	defer ts.Close()

	c, err := NewClient(ClientConfig{BaseURL: ts.URL, APIKey: "k", Timeout: 10 * time.Second})
	require.NoError(t, err)
	_, err = c.Sequence(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestSequenceDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	c, err := NewClient(ClientConfig{BaseURL: ts.URL, APIKey: "k"})
	require.NoError(t, err)
	_, err = c.Sequence(context.Background(), testRequest())
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestParseSequenceSchemaChecks(t *testing.T) {
	cases := map[string]string{
		"unknown field":       `{"start_time":"08:00","totaal_km":1,"surprise":true,"stops":[{"arr":"08:10","act":"R"}]}`,
		"bad start time":      `{"start_time":"25:99","totaal_km":1,"stops":[{"arr":"08:10","act":"R"}]}`,
		"negative km":         `{"start_time":"08:00","totaal_km":-1,"stops":[{"arr":"08:10","act":"R"}]}`,
		"empty stops":         `{"start_time":"08:00","totaal_km":1,"stops":[]}`,
		"unknown act":         `{"start_time":"08:00","totaal_km":1,"stops":[{"arr":"08:10","act":"X"}]}`,
		"delivery without id": `{"start_time":"08:00","totaal_km":1,"stops":[{"arr":"08:10","act":"D","dur":5}]}`,
	}
	for name, payload := range cases {
		_, err := ParseSequence(payload)
		require.Error(t, err, name)
		assert.ErrorIs(t, err, ErrInvalidResponse, name)
	}
}

func TestMockSequencerHonorsWindows(t *testing.T) {
	m := NewMockSequencer()
	req := testRequest()
	req.Orders = append(req.Orders, model.Order{
		ID: "o2", Name: "Later", Address: "Side 2", Postcode: "1012CD", City: "Amsterdam",
		WindowStart: "10:00", WindowEnd: "14:00", ServiceMin: 5, FrozenQty: 2,
	})
	seq, err := m.Sequence(context.Background(), req)
	require.NoError(t, err)
	require.NoError(t, checkSequence(seq))

	var deliveries int
	for _, s := range seq.Stops {
		if s.Act == "D" {
			deliveries++
			arr, err := model.ParseClock(s.Arr)
			require.NoError(t, err)
			o := req.Orders[0]
			if s.ID == "o2" {
				o = req.Orders[1]
			}
			ws, _ := model.ParseClock(o.WindowStart)
			assert.GreaterOrEqual(t, arr, ws, "stop %s arrives before window opens", s.ID)
		}
	}
	assert.Equal(t, 2, deliveries)
	assert.Equal(t, "R", seq.Stops[len(seq.Stops)-1].Act)
}
