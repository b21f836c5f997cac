// ABOUTME: Record quota guard applied to the record-creating tools
// ABOUTME: Builds the user-facing limit rejection payload with upgrade hints

package tools

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/relaymark/teable-gateway/internal/store"
)

// checkQuota recomputes the tenant's record total and decides whether adding
// batchSize records is allowed. A single record is rejected at the ceiling;
// a batch is rejected when it would cross it, so filling exactly to the
// ceiling is permitted. Returns a non-nil soft-error result on rejection.
func (c *catalog) checkQuota(ctx context.Context, batchSize int) (*mcp.CallToolResult, error) {
	if c.b.Ceiling <= 0 {
		return nil, nil
	}

	report, err := c.b.Client.GetTotalRecordCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking record limit: %w", err)
	}
	if !report.Exact() {
		c.logger.Warn("record count is a lower bound",
			"total", report.Total,
			"skipped", report.IncompleteBranches,
		)
	}

	if batchSize <= 1 {
		if report.Total >= c.b.Ceiling {
			return c.reject(c.limitMessage(report.Total)), nil
		}
		return nil, nil
	}

	if report.Total+batchSize > c.b.Ceiling {
		remaining := c.b.Ceiling - report.Total
		if remaining < 0 {
			remaining = 0
		}
		msg := fmt.Sprintf("%s\n\nYou're trying to add %d records but only have space for %d.",
			c.limitMessage(report.Total), batchSize, remaining)
		return c.reject(msg), nil
	}
	return nil, nil
}

func (c *catalog) reject(msg string) *mcp.CallToolResult {
	if c.b.OnQuotaReject != nil {
		c.b.OnQuotaReject()
	}
	return mcp.NewToolResultError(msg)
}

// limitMessage is the quota rejection payload: current/ceiling, tier, and an
// upgrade call to action unless the tenant is already on the top tier.
func (c *catalog) limitMessage(current int) string {
	header := fmt.Sprintf("❌ Record Limit Reached (%s/%s)",
		formatCount(current), formatCount(c.b.Ceiling))

	if c.b.Tier == store.TierEnterprise {
		return header + "\n\nYou've reached the maximum Enterprise limit. Please contact support for custom plans."
	}

	nextTier, nextLimit, link := "Pro", "250,000", c.b.PaymentLinkPro
	if c.b.Tier != store.TierFree {
		nextTier, nextLimit, link = "Enterprise", "1,000,000", c.b.PaymentLinkEnterprise
	}

	return fmt.Sprintf("%s\n\nYou cannot add more records until you upgrade or delete existing records.\n\nUpgrade to %s (%s records):\n%s",
		header, nextTier, nextLimit, link)
}

// formatCount renders n with thousands separators
func formatCount(n int) string {
	s := strconv.Itoa(n)
	if len(s) <= 3 {
		return s
	}
	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	return string(out)
}
