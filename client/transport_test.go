package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vitwit/x402-chat/challenge"
	"github.com/vitwit/x402-chat/types"
)

const (
	recipient = "0x742d35Cc6634C0532925a3b844Bc9e7595f251e3"
	testHash  = "0x4e3a3754410177e6937ef1f84bba68ea139e8d1a2258c5f85db9f1cd715a1bdd"
)

type fakeWallet struct {
	txHash string
	err    error

	calls int
	got   types.PaymentRequirements
}

func (w *fakeWallet) Pay(ctx context.Context, req types.PaymentRequirements) (string, error) {
	w.calls++
	w.got = req
	if w.err != nil {
		return "", w.err
	}
	return w.txHash, nil
}

// capture records what the gated server saw.
type capture struct {
	proofs []string
	bodies []string
}

// gatedServer challenges requests without a payment header and serves paid
// content otherwise, the way the real gate does.
func gatedServer(t *testing.T, rec *capture) *httptest.Server {
	t.Helper()
	builder, err := challenge.NewBuilder(challenge.Config{Recipient: recipient})
	if err != nil {
		t.Fatalf("Failed to create builder: %v", err)
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.bodies = append(rec.bodies, string(body))
		proof := r.Header.Get(types.PaymentHeader)
		rec.proofs = append(rec.proofs, proof)

		if proof == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusPaymentRequired)
			json.NewEncoder(w).Encode(builder.Response("http://"+r.Host+r.URL.Path, "X-PAYMENT header is required"))
			return
		}

		w.Header().Set(types.PaymentReceiptHeader, fmt.Sprintf(`{"txHash":%q,"verified":true}`, proof))
		io.WriteString(w, "paid content")
	}))
}

func TestTransport_PaysAndRetries(t *testing.T) {
	rec := &capture{}
	srv := gatedServer(t, rec)
	defer srv.Close()

	wallet := &fakeWallet{txHash: testHash}
	httpClient := NewClient(wallet, nil)

	resp, err := httpClient.Post(srv.URL+"/v1/chat", "application/json", strings.NewReader(`{"q":1}`))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "paid content" {
		t.Errorf("Expected paid content, got %q", body)
	}
	if got := resp.Header.Get(types.PaymentReceiptHeader); !strings.Contains(got, testHash) {
		t.Errorf("Expected receipt header with tx hash, got %q", got)
	}

	if wallet.calls != 1 {
		t.Errorf("Expected exactly one payment, got %d", wallet.calls)
	}
	if wallet.got.PayTo != recipient {
		t.Errorf("Expected payTo %s, got %q", recipient, wallet.got.PayTo)
	}
	if wallet.got.MaxAmountRequired != "1000000000000000" {
		t.Errorf("Expected the advertised price, got %q", wallet.got.MaxAmountRequired)
	}
	if wallet.got.Scheme != "exact" {
		t.Errorf("Expected scheme exact, got %q", wallet.got.Scheme)
	}

	if len(rec.proofs) != 2 {
		t.Fatalf("Expected two round trips, got %d", len(rec.proofs))
	}
	if rec.proofs[0] != "" || rec.proofs[1] != testHash {
		t.Errorf("Expected the proof only on the retry, got %v", rec.proofs)
	}
	// The body must survive the replay byte for byte.
	if rec.bodies[0] != `{"q":1}` || rec.bodies[1] != `{"q":1}` {
		t.Errorf("Expected the body on both attempts, got %v", rec.bodies)
	}
}

func TestTransport_PassThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "free content")
	}))
	defer srv.Close()

	wallet := &fakeWallet{txHash: testHash}
	httpClient := NewClient(wallet, nil)

	resp, err := httpClient.Get(srv.URL)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if wallet.calls != 0 {
		t.Errorf("Expected no payment for an ungated response, got %d", wallet.calls)
	}
}

func TestTransport_Declined(t *testing.T) {
	rec := &capture{}
	srv := gatedServer(t, rec)
	defer srv.Close()

	wallet := &fakeWallet{err: fmt.Errorf("user said no: %w", ErrPaymentDeclined)}
	httpClient := NewClient(wallet, nil)

	_, err := httpClient.Post(srv.URL+"/v1/chat", "application/json", strings.NewReader(`{"q":1}`))
	if err == nil {
		t.Fatal("Expected error when the wallet declines")
	}
	if !errors.Is(err, ErrPaymentDeclined) {
		t.Errorf("Expected ErrPaymentDeclined to survive wrapping, got %v", err)
	}
	if len(rec.proofs) != 1 {
		t.Errorf("Expected no retry after a decline, got %d round trips", len(rec.proofs))
	}
}

func TestTransport_WalletFailure(t *testing.T) {
	rec := &capture{}
	srv := gatedServer(t, rec)
	defer srv.Close()

	wallet := &fakeWallet{err: errors.New("insufficient funds")}
	httpClient := NewClient(wallet, nil)

	_, err := httpClient.Post(srv.URL+"/v1/chat", "application/json", strings.NewReader(`{"q":1}`))
	if err == nil {
		t.Fatal("Expected error when the wallet fails")
	}
	if errors.Is(err, ErrPaymentDeclined) {
		t.Error("A wallet fault is not a decline")
	}
	if !strings.Contains(err.Error(), "wallet payment failed") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestTransport_SecondChallengeReturned(t *testing.T) {
	// A server that still answers 402 after payment gets one retry and no
	// more; the second 402 goes back to the caller untouched.
	builder, err := challenge.NewBuilder(challenge.Config{Recipient: recipient})
	if err != nil {
		t.Fatalf("Failed to create builder: %v", err)
	}
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(builder.Response("http://"+r.Host+r.URL.Path, "X-PAYMENT header is required"))
	}))
	defer srv.Close()

	wallet := &fakeWallet{txHash: testHash}
	httpClient := NewClient(wallet, nil)

	resp, err := httpClient.Post(srv.URL+"/v1/chat", "application/json", strings.NewReader(`{"q":1}`))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 402 {
		t.Errorf("Expected the second 402 to pass through, got %d", resp.StatusCode)
	}
	if attempts != 2 {
		t.Errorf("Expected exactly two attempts, got %d", attempts)
	}
	if wallet.calls != 1 {
		t.Errorf("Expected exactly one payment, got %d", wallet.calls)
	}
}

func TestTransport_MalformedChallenge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		io.WriteString(w, "{not json")
	}))
	defer srv.Close()

	httpClient := NewClient(&fakeWallet{txHash: testHash}, nil)

	_, err := httpClient.Get(srv.URL)
	if err == nil {
		t.Fatal("Expected error for an unparseable challenge")
	}
	if !strings.Contains(err.Error(), "parse challenge") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestTransport_ChallengeWithoutTerms(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		io.WriteString(w, `{"x402Version":1,"error":"denied"}`)
	}))
	defer srv.Close()

	wallet := &fakeWallet{txHash: testHash}
	httpClient := NewClient(wallet, nil)

	_, err := httpClient.Get(srv.URL)
	if err == nil {
		t.Fatal("Expected error for a challenge with no payment requirements")
	}
	if !strings.Contains(err.Error(), "no payment requirements") {
		t.Errorf("Unexpected error: %v", err)
	}
	if wallet.calls != 0 {
		t.Error("Expected no payment without terms to pay against")
	}
}

func TestTransport_RequiresWallet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	httpClient := &http.Client{Transport: &Transport{}}
	if _, err := httpClient.Get(srv.URL); err == nil {
		t.Fatal("Expected error without a wallet")
	}
}

func TestTransport_BodylessRequest(t *testing.T) {
	rec := &capture{}
	srv := gatedServer(t, rec)
	defer srv.Close()

	wallet := &fakeWallet{txHash: testHash}
	httpClient := NewClient(wallet, nil)

	resp, err := httpClient.Get(srv.URL + "/v1/chat")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if len(rec.proofs) != 2 || rec.proofs[1] != testHash {
		t.Errorf("Expected a paid retry, got %v", rec.proofs)
	}
}
