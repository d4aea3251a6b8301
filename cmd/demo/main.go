package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aridsondez/sqs-lite-mem/pkg/client"
)

const (
	baseURL      = "http://localhost:8080"
	colorReset   = "\033[0m"
	colorRed     = "\033[31m"
	colorGreen   = "\033[32m"
	colorYellow  = "\033[33m"
	colorBlue    = "\033[34m"
	colorMagenta = "\033[35m"
	colorCyan    = "\033[36m"
	colorBold    = "\033[1m"
)

func main() {
	printHeader()

	// Check server is running
	if !checkServer() {
		fmt.Printf("%s✗ Server not running. Please run 'make run' first.%s\n", colorRed, colorReset)
		os.Exit(1)
	}

	fmt.Printf("%s✓ Server is running%s\n\n", colorGreen, colorReset)

	c := client.NewClient(baseURL)
	ctx := context.Background()

	fmt.Printf("%s=== SQS Lite Demo ===%s\n\n", colorBold+colorCyan, colorReset)

	steps := []func(context.Context, *client.Client) error{
		scenarioBasicFlow,
		scenarioVisibilityTimeout,
		scenarioAttributesAndPurge,
	}
	for _, step := range steps {
		if err := step(ctx, c); err != nil {
			fmt.Printf("%s✗ %v%s\n", colorRed, err, colorReset)
			os.Exit(1)
		}
		time.Sleep(1 * time.Second)
	}

	displayMetrics()

	printFooter()
}

func printHeader() {
	fmt.Print(colorCyan + colorBold)
	fmt.Println("╔════════════════════════════════════════════════════════════╗")
	fmt.Println("║         SQS LITE - INTERACTIVE DEMO                       ║")
	fmt.Println("║         In-memory queues with visibility timeouts         ║")
	fmt.Println("╚════════════════════════════════════════════════════════════╝")
	fmt.Print(colorReset)
	fmt.Println()
}

func printFooter() {
	fmt.Println()
	fmt.Print(colorCyan)
	fmt.Println("╔════════════════════════════════════════════════════════════╗")
	fmt.Println("║                    Demo Complete!                         ║")
	fmt.Println("║  View live metrics at: http://localhost:8080/metrics      ║")
	fmt.Println("╚════════════════════════════════════════════════════════════╝")
	fmt.Print(colorReset)
}

func checkServer() bool {
	resp, err := http.Get(baseURL + "/healthz")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == 200
}

// ensureQueue creates name, tolerating a queue left over from an earlier run.
func ensureQueue(ctx context.Context, c *client.Client, name string, attrs map[string]string) error {
	err := c.CreateQueue(ctx, name, attrs)
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
		if _, err := c.SetAttributes(ctx, name, attrs); err != nil {
			return err
		}
		return c.Purge(ctx, name)
	}
	return err
}

func scenarioBasicFlow(ctx context.Context, c *client.Client) error {
	printScenario("Scenario 1: Basic Message Flow (Push → Pull → Delete)")

	if err := ensureQueue(ctx, c, "orders", nil); err != nil {
		return err
	}

	// 1. Push
	fmt.Printf("%s→ Pushing message to 'orders' queue...%s\n", colorYellow, colorReset)
	id, err := c.PushJSON(ctx, "orders", map[string]any{
		"order_id": "ORD-12345",
		"customer": "John Doe",
		"total":    99.99,
	})
	if err != nil {
		return err
	}
	fmt.Printf("%s  ✓ Message pushed with ID: %s%s\n", colorGreen, id, colorReset)

	// 2. Pull
	fmt.Printf("%s→ Pulling message from 'orders' queue...%s\n", colorYellow, colorReset)
	msg, err := c.Pull(ctx, "orders")
	if err != nil {
		return err
	}
	if msg == nil {
		return fmt.Errorf("expected a message in 'orders'")
	}
	fmt.Printf("%s  ✓ Pulled message ID: %s%s\n", colorGreen, msg.ID, colorReset)
	fmt.Printf("    Body: %s\n", msg.Body)

	// 3. Delete
	fmt.Printf("%s→ Deleting message with its receipt handle...%s\n", colorYellow, colorReset)
	if _, err := c.Delete(ctx, "orders", msg.Receipt); err != nil {
		return err
	}
	fmt.Printf("%s  ✓ Message deleted%s\n", colorGreen, colorReset)

	// 4. Verify empty
	fmt.Printf("%s→ Verifying queue is empty...%s\n", colorYellow, colorReset)
	if msg, err := c.Pull(ctx, "orders"); err == nil && msg == nil {
		fmt.Printf("%s  ✓ Queue is empty (message successfully processed)%s\n", colorGreen, colorReset)
	}

	fmt.Println()
	return nil
}

func scenarioVisibilityTimeout(ctx context.Context, c *client.Client) error {
	printScenario("Scenario 2: Expired Messages Return to the Queue")

	if err := ensureQueue(ctx, c, "tasks", map[string]string{"VisibilityTimeout": "2"}); err != nil {
		return err
	}

	fmt.Printf("%s→ Pushing task message...%s\n", colorYellow, colorReset)
	id, err := c.PushJSON(ctx, "tasks", map[string]any{"task": "process-payment", "amount": 50.00})
	if err != nil {
		return err
	}
	fmt.Printf("%s  ✓ Message pushed with ID: %s%s\n", colorGreen, id, colorReset)

	fmt.Printf("%s→ Pulling message (VisibilityTimeout=2s)...%s\n", colorYellow, colorReset)
	first, err := c.Pull(ctx, "tasks")
	if err != nil {
		return err
	}
	if first == nil {
		return fmt.Errorf("expected a message in 'tasks'")
	}
	fmt.Printf("%s  ✓ Message in flight%s\n", colorGreen, colorReset)

	// Don't delete - simulate worker crash
	fmt.Printf("%s→ Simulating worker crash (not deleting)...%s\n", colorMagenta, colorReset)
	fmt.Printf("%s  ⏳ Waiting for visibility timeout to expire...%s\n", colorBlue, colorReset)
	time.Sleep(3 * time.Second)

	fmt.Printf("%s→ Pulling again (message should be back)...%s\n", colorYellow, colorReset)
	second, err := c.Pull(ctx, "tasks")
	if err != nil {
		return err
	}
	if second == nil || second.ID != first.ID {
		return fmt.Errorf("expected message %s to be redelivered", first.ID)
	}
	fmt.Printf("%s  ✓ Message redelivered with a new receipt handle%s\n", colorGreen, colorReset)

	ok, err := c.Delete(ctx, "tasks", first.Receipt)
	if err != nil {
		return err
	}
	fmt.Printf("%s  ✓ Old receipt rejected: %v%s\n", colorGreen, !ok, colorReset)

	if _, err := c.Delete(ctx, "tasks", second.Receipt); err != nil {
		return err
	}
	fmt.Printf("%s  ✓ Cleaned up message%s\n", colorGreen, colorReset)

	fmt.Println()
	return nil
}

func scenarioAttributesAndPurge(ctx context.Context, c *client.Client) error {
	printScenario("Scenario 3: Queue Attributes and Purge")

	if err := ensureQueue(ctx, c, "emails", nil); err != nil {
		return err
	}

	fmt.Printf("%s→ Setting VisibilityTimeout to an out-of-range value...%s\n", colorYellow, colorReset)
	attrs, err := c.SetAttributes(ctx, "emails", map[string]string{"VisibilityTimeout": "99999"})
	if err != nil {
		return err
	}
	fmt.Printf("%s  ✓ Server kept the default: VisibilityTimeout=%s%s\n", colorGreen, attrs["VisibilityTimeout"], colorReset)

	for i := 0; i < 5; i++ {
		if _, err := c.Push(ctx, "emails", fmt.Sprintf("email-%d", i)); err != nil {
			return err
		}
	}
	n, err := c.ApproximateNumberOfMessages(ctx, "emails")
	if err != nil {
		return err
	}
	fmt.Printf("%s  ✓ %d messages waiting%s\n", colorGreen, n, colorReset)

	fmt.Printf("%s→ Purging 'emails'...%s\n", colorYellow, colorReset)
	if err := c.Purge(ctx, "emails"); err != nil {
		return err
	}
	n, err = c.ApproximateNumberOfMessages(ctx, "emails")
	if err != nil {
		return err
	}
	fmt.Printf("%s  ✓ %d messages after purge%s\n", colorGreen, n, colorReset)

	fmt.Println()
	return nil
}

func displayMetrics() {
	printScenario("Live Prometheus Metrics")

	resp, err := http.Get(baseURL + "/metrics")
	if err != nil {
		fmt.Printf("%s✗ Failed to fetch metrics%s\n", colorRed, colorReset)
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	lines := strings.Split(string(body), "\n")

	metrics := []string{
		"sqs_messages_pushed_total",
		"sqs_messages_pulled_total",
		"sqs_messages_deleted_total",
		"sqs_messages_requeued_total",
		"sqs_queue_purges_total",
		"sqs_queue_messages_available",
		"sqs_queue_messages_inflight",
		"sqs_sweeper_errors_total",
		"sqs_sweeper_duration_seconds_count",
	}

	for _, line := range lines {
		for _, metric := range metrics {
			if strings.HasPrefix(line, metric) && !strings.Contains(line, "#") {
				// Colorize the output
				parts := strings.Split(line, " ")
				if len(parts) == 2 {
					fmt.Printf("%s%-50s%s %s%s%s\n",
						colorCyan, parts[0], colorReset,
						colorGreen+colorBold, parts[1], colorReset)
				}
			}
		}
	}

	fmt.Printf("\n%sView full metrics: %shttp://localhost:8080/metrics%s\n",
		colorYellow, colorBlue+colorBold, colorReset)
}

func printScenario(title string) {
	fmt.Printf("%s%s┌─────────────────────────────────────────────────────────────┐%s\n",
		colorBold, colorMagenta, colorReset)
	fmt.Printf("%s%s│ %-59s │%s\n",
		colorBold, colorMagenta, title, colorReset)
	fmt.Printf("%s%s└─────────────────────────────────────────────────────────────┘%s\n",
		colorBold, colorMagenta, colorReset)
}
