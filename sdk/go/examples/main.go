package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"

	"IntentWise-Chain/sdk/go/intentwise"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/token", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(intentwise.Token{AccessToken: "demo-token", TokenType: "Bearer"})
	})
	mux.HandleFunc("/api/v1/intents", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			_ = json.NewEncoder(w).Encode(intentwise.Intent{
				ID:        "intent-demo",
				Action:    "STAKE",
				Token:     "USDC",
				Amount:    "100",
				Frequency: "WEEKLY",
				IsActive:  true,
			})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/intents/intent-demo/execute", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(intentwise.ExecuteResult{
			Success:  true,
			Executed: true,
			Record: &intentwise.ExecutionRecord{
				ID:       "record-demo",
				IntentID: "intent-demo",
				Status:   "SUCCESS",
				TxHash:   "sim-5c9f2ab4",
				Mode:     "simulated",
			},
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := intentwise.NewClient(srv.URL, srv.Client())
	ctx := context.Background()

	if _, err := client.Authenticate(ctx, intentwise.Credentials{Username: "demo", Password: "demo"}); err != nil {
		fmt.Println("authenticate:", err)
		return
	}

	created, err := client.CreateIntent(ctx, intentwise.IntentSubmission{
		WalletAddress: "0x1111111111111111111111111111111111111111",
		Title:         "weekly stake",
		Action:        "STAKE",
		Token:         "USDC",
		Amount:        "100",
		Frequency:     "WEEKLY",
		Condition:     &intentwise.Condition{Type: "gas", Threshold: "20", Comparison: "<"},
	})
	if err != nil {
		fmt.Println("create intent:", err)
		return
	}
	fmt.Println("created intent:", created.ID)

	result, err := client.ExecuteIntent(ctx, created.ID)
	if err != nil {
		fmt.Println("execute intent:", err)
		return
	}
	fmt.Printf("executed=%v tx=%s mode=%s\n", result.Executed, result.Record.TxHash, result.Record.Mode)
}
