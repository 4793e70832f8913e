package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"pehlione.com/payrecon/internal/gateway"
)

func main() {
	_ = godotenv.Load()

	url := flag.String("url", "http://localhost:8080/webhooks/payment", "Webhook URL")
	secret := flag.String("secret", os.Getenv("MOCK_WEBHOOK_SECRET"), "Webhook secret")
	eventID := flag.String("event-id", "evt_"+uuid.NewString()[:8], "Event ID (empty to omit)")
	event := flag.String("event", gateway.EventOrderCompleted, "Event ("+gateway.EventOrderCompleted+", "+gateway.EventOrderFailed+")")
	orderRef := flag.String("order", "", "Merchant order reference (ORD-...)")
	txnID := flag.String("txn", "mock_"+uuid.NewString()[:12], "Gateway transaction id")
	amount := flag.Int("amount", 0, "Amount in minor units")
	skew := flag.Duration("skew", 0, "Shift the signature timestamp, e.g. -10m to test tolerance")
	dryRun := flag.Bool("dry-run", false, "Only print signature header, don't send")

	flag.Parse()

	if *secret == "" {
		fmt.Fprintf(os.Stderr, "Error: secret not provided and MOCK_WEBHOOK_SECRET not set\n")
		os.Exit(1)
	}
	if *orderRef == "" {
		fmt.Fprintf(os.Stderr, "Error: -order is required\n")
		os.Exit(1)
	}

	state := gateway.StateCompleted
	if *event == gateway.EventOrderFailed {
		state = gateway.StateFailed
	}
	body, err := json.Marshal(gateway.MockPayload{
		EventID: *eventID,
		Event:   *event,
		Payload: gateway.MockPayment{
			MerchantOrderID: *orderRef,
			TransactionID:   *txnID,
			Amount:          *amount,
			State:           state,
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling payload: %v\n", err)
		os.Exit(1)
	}

	sigHeader := gateway.SignMock([]byte(*secret), time.Now().Add(*skew), body)

	fmt.Printf("%s: %s\n", gateway.MockHeader, sigHeader)
	fmt.Printf("Body: %s\n", string(body))

	if *dryRun {
		fmt.Println("\n[DRY RUN] Not sending request")
		return
	}

	fmt.Printf("\nSending to %s...\n", *url)
	req, err := http.NewRequest(http.MethodPost, *url, bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating request: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(gateway.MockHeader, sigHeader)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error sending request: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	fmt.Printf("Status: %d\n", resp.StatusCode)
	fmt.Printf("Response: %s\n", string(respBody))

	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
