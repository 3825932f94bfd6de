// Package chat answers free-text questions about a scored portfolio, either
// through a hosted language model (Assistant) or with canned answers
// computed locally (LocalResponder).
package chat

import (
	"fmt"
	"strings"

	"github.com/sells-group/risk-cli/internal/model"
	"github.com/sells-group/risk-cli/internal/portfolio"
	"github.com/sells-group/risk-cli/internal/relevance"
	"github.com/sells-group/risk-cli/internal/scorer"
)

const systemPromptTemplate = `You are an expert credit risk analyst assistant helping users analyze their accounts receivable data. You provide actionable insights about client risk, payment behaviors, and collection strategies.

## Current Data Context
%s

## Risk Scoring Methodology
The risk score (0-100) is calculated using a weighted formula:
- Days Past Due (%s weight): 0-%d+ days normalized to 0-%s points
- Credit Utilization (%s weight): 0-%d%%+ normalized to 0-%s points
- Reminders Count (%s weight): 0-%d+ reminders normalized to 0-%s points
- Average Orders 60 Days (%s weight): Lower orders = higher risk, normalized to 0-%s points

## Risk Category Thresholds
- High Risk: Score >= %d (requires immediate attention)
- Medium Risk: Score %d-%d (monitor closely)
- Low Risk: Score < %d (healthy accounts)

## Your Responsibilities
1. Answer questions about client risk patterns, overdue payments, and credit utilization
2. Provide specific recommendations for collection prioritization
3. Explain why specific clients have their risk scores
4. Identify trends and patterns in the data
5. Suggest actionable next steps for risk mitigation

## Response Guidelines
- Be concise and actionable
- Use specific numbers from the data when relevant
- Prioritize insights that help with collection decisions
- When asked "why" about a risk score, explain which factors contributed most
- If you don't have enough information to answer precisely, say so and explain what data would be needed`

func pct(w float64) string    { return fmt.Sprintf("%.0f%%", w*100) }
func points(w float64) string { return fmt.Sprintf("%.0f", w*100) }

// SystemPrompt returns the analyst system prompt with dataContext embedded.
// Weights and thresholds come from the scorer package.
func SystemPrompt(dataContext string) string {
	return fmt.Sprintf(systemPromptTemplate,
		dataContext,
		pct(scorer.WeightDaysPastDue), int(scorer.DaysPastDueRange.Max), points(scorer.WeightDaysPastDue),
		pct(scorer.WeightCreditUtilization), int(scorer.CreditUtilizationRange.Max), points(scorer.WeightCreditUtilization),
		pct(scorer.WeightRemindersCount), int(scorer.RemindersCountRange.Max), points(scorer.WeightRemindersCount),
		pct(scorer.WeightAvgOrders), points(scorer.WeightAvgOrders),
		scorer.HighThreshold,
		scorer.MediumThreshold, scorer.HighThreshold-1,
		scorer.MediumThreshold,
	)
}

// BuildContext renders the portfolio summary over all records followed by
// one line per record selected by the relevance filter.
func BuildContext(all []model.ClientRecord, res relevance.Result) string {
	s := portfolio.Summarize(all)
	high := s.Category(model.RiskHigh)
	med := s.Category(model.RiskMedium)
	low := s.Category(model.RiskLow)

	var b strings.Builder
	fmt.Fprintf(&b, "Portfolio: %s clients, total AR %s, average risk score %d/100.\n",
		portfolio.FormatCount(s.TotalClients), portfolio.FormatCurrency(s.TotalAR), s.AverageRiskScore)
	fmt.Fprintf(&b, "Risk mix: High %d (%s), Medium %d (%s), Low %d (%s).\n",
		high.Count, portfolio.FormatCurrency(high.Value),
		med.Count, portfolio.FormatCurrency(med.Value),
		low.Count, portfolio.FormatCurrency(low.Value))
	fmt.Fprintf(&b, "Overdue: 90+ days %d (%s), 60-89 days %d, 30-59 days %d.\n",
		s.Overdue90, portfolio.FormatCurrency(s.Overdue90Value), s.Overdue60, s.Overdue30)
	fmt.Fprintf(&b, "Credit utilization >= %d%%: %d. %d+ reminders: %d. Fewer than %.0f orders in 60 days: %d.\n",
		portfolio.HighUtilizationPct, s.HighUtilization,
		portfolio.FrequentReminders, s.FrequentReminders,
		portfolio.LowOrderFrequency, s.LowOrderFrequency)

	b.WriteString("\nSelected records: ")
	b.WriteString(res.Description)
	b.WriteString("\n")
	for _, r := range res.Clients {
		b.WriteString(recordLine(r))
		b.WriteString("\n")
	}
	return b.String()
}

func recordLine(r model.ClientRecord) string {
	payment := r.PaymentDate
	if payment == "" {
		payment = "unpaid"
	}
	return fmt.Sprintf("- %s | %s | score %d (%s) | %d days past due | utilization %d%% | reminders %d | orders %.1f/60d | invoice $%.2f | due %s | paid %s | %s",
		r.ID, r.Name, r.RiskScore, r.RiskCategory, r.DaysPastDue, r.CreditUtilization,
		r.RemindersCount, r.AvgOrders60Days, r.InvoiceAmount, r.DueDate, payment, r.RiskRationale)
}
