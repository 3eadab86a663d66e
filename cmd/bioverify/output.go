package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/cashcore/bioverify/internal/accounts"
	"github.com/cashcore/bioverify/internal/batch"
	"github.com/cashcore/bioverify/internal/verify"
)

const bioPreviewLen = 200

func statusLabel(verified bool) string {
	if verified {
		return "✅ VERIFIED"
	}
	return "❌ NOT VERIFIED"
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printResult renders a single-account check.
func printResult(w io.Writer, res verify.Result) error {
	if outputFormat == "json" {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "\nVerification result for %s/%s:\n", res.Platform, res.Username)
	fmt.Fprintf(w, "Status: %s\n", statusLabel(res.Verified))
	if res.CodeFound != "" {
		fmt.Fprintf(w, "Code found: %s\n", res.CodeFound)
	}
	if res.Bio != nil {
		fmt.Fprintf(w, "Bio: %s\n", res.BioPreview(bioPreviewLen))
	}
	if res.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", res.Error)
	}
	return nil
}

// printUserResults renders a per-user check grouped by platform.
func printUserResults(w io.Writer, userID string, results map[accounts.Platform][]verify.Result) error {
	if outputFormat == "json" {
		return writeJSON(w, map[string]any{"user_id": userID, "results": results})
	}
	if len(results) == 0 {
		fmt.Fprintf(w, "No linked accounts found for user %s\n", userID)
		return nil
	}
	fmt.Fprintf(w, "\nVerification results for user %s:\n", userID)
	for _, p := range accounts.Platforms {
		rs, ok := results[p]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "\n%s:\n", strings.ToUpper(p.String()))
		for _, r := range rs {
			fmt.Fprintf(w, "  %s: %s\n", r.Username, statusLabel(r.Verified))
			if r.CodeFound != "" {
				fmt.Fprintf(w, "    Code found: %s\n", r.CodeFound)
			}
			if r.Error != "" {
				fmt.Fprintf(w, "    Error: %s\n", r.Error)
			}
		}
	}
	return nil
}

// printBatch renders one batch's results grouped by user.
func printBatch(w io.Writer, results map[string][]verify.Result) error {
	if outputFormat == "json" {
		return writeJSON(w, results)
	}
	sum := batch.Summarize(results)
	fmt.Fprintf(w, "\nBatch verification completed. Processed %d accounts for %d users (%d verified):\n",
		sum.Processed, sum.Users, sum.Verified)

	users := make([]string, 0, len(results))
	for u := range results {
		users = append(users, u)
	}
	slices.Sort(users)
	for _, u := range users {
		fmt.Fprintf(w, "\nUser %s:\n", u)
		for _, r := range results[u] {
			fmt.Fprintf(w, "  %s/%s: %s\n", r.Platform, r.Username, statusLabel(r.Verified))
		}
	}
	return nil
}

// printAccount renders a linked account record.
func printAccount(w io.Writer, a *accounts.Account) error {
	if outputFormat == "json" {
		return writeJSON(w, a)
	}
	fmt.Fprintf(w, "Linked %s/%s for user %s\n", a.Platform, a.Username, a.UserID)
	fmt.Fprintf(w, "Verification code: %s\n", a.ExpectedCode())
	fmt.Fprintf(w, "Add this code anywhere in the account's bio, then run a check.\n")
	return nil
}
