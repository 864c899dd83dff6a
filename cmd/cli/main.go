package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	baseURL string
	timeout time.Duration
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ilpledger-cli",
		Short: "ILP ledger CLI tool",
		Long:  `A command line interface for administering the ILP ledger API.`,
	}

	rootCmd.PersistentFlags().StringVar(&baseURL, "url", "http://localhost:8080", "Base URL of the ledger API")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")

	// Ledger commands
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Ledger operations",
	}

	consistencyCmd := &cobra.Command{
		Use:   "consistency",
		Short: "Check per-asset conservation",
		Run: func(cmd *cobra.Command, args []string) {
			checkConsistency()
		},
	}

	ledgerCmd.AddCommand(consistencyCmd)
	rootCmd.AddCommand(ledgerCmd)

	// Liquidity commands
	liquidityCmd := &cobra.Command{
		Use:   "liquidity",
		Short: "Asset liquidity operations",
	}

	var depositID string
	depositCmd := &cobra.Command{
		Use:   "deposit <asset-code> <asset-scale> <amount>",
		Short: "Deposit into an asset's liquidity balance",
		Args:  cobra.ExactArgs(3),
		Run: func(cmd *cobra.Command, args []string) {
			moveLiquidity("deposit", args[0], args[1], args[2], depositID)
		},
	}
	depositCmd.Flags().StringVar(&depositID, "deposit-id", "", "Idempotency id for the deposit")

	var withdrawalID string
	withdrawCmd := &cobra.Command{
		Use:   "withdraw <asset-code> <asset-scale> <amount>",
		Short: "Withdraw from an asset's liquidity balance",
		Args:  cobra.ExactArgs(3),
		Run: func(cmd *cobra.Command, args []string) {
			moveLiquidity("withdraw", args[0], args[1], args[2], withdrawalID)
		},
	}
	withdrawCmd.Flags().StringVar(&withdrawalID, "withdrawal-id", "", "Idempotency id for the withdrawal")

	showCmd := &cobra.Command{
		Use:   "show <asset-code> <asset-scale>",
		Short: "Show an asset's liquidity and settlement balances",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			showAsset(args[0], args[1])
		},
	}

	liquidityCmd.AddCommand(depositCmd, withdrawCmd, showCmd)
	rootCmd.AddCommand(liquidityCmd)

	return rootCmd
}

func checkConsistency() {
	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(baseURL + "/api/v1/ledger/consistency")
	if err != nil {
		fmt.Printf("Error making request: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		fmt.Printf("Consistency check FAILED (Status: %d)\nResponse: %s\n", resp.StatusCode, string(body))
		os.Exit(1)
	}

	var result map[string]any
	if err := json.Unmarshal(body, &result); err != nil {
		fmt.Printf("Failed to parse response: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Consistency check PASSED\n")
	if consistent, ok := result["consistent"].(bool); ok {
		fmt.Printf("Consistent: %v\n", consistent)
	}
	fmt.Printf("Status: %s\n", result["status"])
}

func moveLiquidity(op, code, scale, amount, idempotencyID string) {
	payload := map[string]string{"amount": amount}
	switch op {
	case "deposit":
		if idempotencyID != "" {
			payload["deposit_id"] = idempotencyID
		}
	case "withdraw":
		if idempotencyID != "" {
			payload["withdrawal_id"] = idempotencyID
		}
	}

	body, _ := json.Marshal(payload)
	url := fmt.Sprintf("%s/api/v1/assets/%s/%s/liquidity/%s", baseURL, code, scale, op)

	client := &http.Client{Timeout: timeout}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Printf("Error making request: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("Liquidity %s FAILED (Status: %d)\nResponse: %s\n", op, resp.StatusCode, string(respBody))
		os.Exit(1)
	}

	fmt.Printf("Liquidity %s OK: %s %s %s\n", op, amount, code, scale)
}

func showAsset(code, scale string) {
	client := &http.Client{Timeout: timeout}

	for _, kind := range []string{"liquidity", "settlement"} {
		url := fmt.Sprintf("%s/api/v1/assets/%s/%s/%s", baseURL, code, scale, kind)
		resp, err := client.Get(url)
		if err != nil {
			fmt.Printf("Error making request: %v\n", err)
			os.Exit(1)
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			fmt.Printf("%s: error (Status: %d): %s\n", kind, resp.StatusCode, string(body))
			continue
		}

		var balance map[string]any
		if err := json.Unmarshal(body, &balance); err != nil {
			fmt.Printf("%s: failed to parse response: %v\n", kind, err)
			continue
		}

		fmt.Printf("%s: amount=%v reserved=%v available=%v\n", kind, balance["amount"], balance["reserved_amount"], balance["available"])
	}
}
