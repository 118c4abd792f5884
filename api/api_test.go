// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/stakehub-labs/stakehub/api"
	"github.com/stakehub-labs/stakehub/bn"
	"github.com/stakehub-labs/stakehub/escrow"
	"github.com/stakehub-labs/stakehub/eventdb"
	"github.com/stakehub-labs/stakehub/health"
	"github.com/stakehub-labs/stakehub/kv"
	"github.com/stakehub-labs/stakehub/stakehub"
	"github.com/stakehub-labs/stakehub/token"
)

var (
	owner = stakehub.NamedAddress("owner")
	alice = stakehub.NamedAddress("alice")
)

type fixture struct {
	srv    *httptest.Server
	escrow *escrow.Escrow
	events *eventdb.EventDB
	health *health.Health
	now    uint64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	deposit := token.NewMemLedger()
	require.NoError(t, deposit.Mint(alice, bn.FromUint64(1_000_000)))

	esc, err := escrow.New(kv.NewMem(), deposit, owner, eventdb.Noop())
	require.NoError(t, err)

	events, err := eventdb.NewMem()
	require.NoError(t, err)
	t.Cleanup(events.Close)

	f := &fixture{
		escrow: esc,
		events: events,
		health: health.New(),
		now:    1_700_000_000,
	}
	handler, closer := api.New(api.Engines{
		Escrow:  esc,
		EventDB: events,
		Health:  f.health,
	}, func() uint64 { return f.now }, api.Options{AllowedOrigins: "*"})
	t.Cleanup(closer)

	f.srv = httptest.NewServer(handler)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) get(t *testing.T, path string, out interface{}) int {
	t.Helper()
	res, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	defer res.Body.Close()
	if out != nil && res.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res.StatusCode
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t)

	var status health.Status
	require.Equal(t, http.StatusServiceUnavailable, f.get(t, "/healthz", &status))

	f.health.NewTick(nil)
	f.health.APIReadyStatus(true)

	require.Equal(t, http.StatusOK, f.get(t, "/healthz", &status))
	require.True(t, status.Healthy)
	require.True(t, status.APIReady)
}

func TestEscrowEndpoints(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.escrow.CreateLock(f.now, alice, bn.FromUint64(100_000), 10*stakehub.WeekSeconds))

	var lock escrow.LockInfo
	require.Equal(t, http.StatusOK, f.get(t, "/escrow/locks/"+alice.String(), &lock))
	require.Equal(t, uint64(100_000), lock.Amount.Uint64())

	ghost := stakehub.NamedAddress("ghost")
	require.Equal(t, http.StatusNotFound, f.get(t, "/escrow/locks/"+ghost.String(), nil))
	require.Equal(t, http.StatusBadRequest, f.get(t, "/escrow/locks/short", nil))

	var power struct {
		VotingPower bn.Int `json:"votingPower"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/escrow/voting-power/"+alice.String(), &power))
	require.False(t, power.VotingPower.IsZero())

	var total struct {
		VotingPower bn.Int `json:"votingPower"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/escrow/total-voting-power", &total))
	require.Equal(t, power.VotingPower.String(), total.VotingPower.String())

	var blacklisted struct {
		Blacklisted bool `json:"blacklisted"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/escrow/blacklist/"+alice.String(), &blacklisted))
	require.False(t, blacklisted.Blacklisted)
}

func TestEventsEndpoint(t *testing.T) {
	f := newFixture(t)

	for i := uint64(0); i < 5; i++ {
		f.events.Record(f.now+i, "hub", "bond", map[string]string{"i": stakehub.FormatUint(i)})
	}
	f.events.Record(f.now, "escrow", "create_lock", nil)

	body, err := json.Marshal(&eventdb.Filter{Component: "hub"})
	require.NoError(t, err)
	res, err := http.Post(f.srv.URL+"/events", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var events []*eventdb.Event
	require.NoError(t, json.NewDecoder(res.Body).Decode(&events))
	require.Len(t, events, 5)
	require.Equal(t, "bond", events[0].Action)

	res, err = http.Post(f.srv.URL+"/events", "application/json", strings.NewReader("{bad"))
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestEventSubscription(t *testing.T) {
	f := newFixture(t)

	// events recorded before the subscription must not replay
	f.events.Record(f.now, "hub", "bond", nil)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/subscriptions/event?component=hub"
	conn, res, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if res != nil {
		res.Body.Close()
	}
	defer conn.Close()

	f.events.Record(f.now+1, "hub", "reinvest", map[string]string{"uluna_bonded": "42"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev eventdb.Event
	require.NoError(t, conn.ReadJSON(&ev))
	require.Equal(t, "reinvest", ev.Action)
	require.Equal(t, "42", ev.Attrs["uluna_bonded"])
}
