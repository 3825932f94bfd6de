package chat

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sells-group/risk-cli/internal/model"
	"github.com/sells-group/risk-cli/internal/portfolio"
	"github.com/sells-group/risk-cli/pkg/anthropic"
)

// HelpText is the LocalResponder fallback answer.
const HelpText = "I can help you analyze risk patterns, overdue payments, credit utilization, and more. " +
	"Try asking about high-risk clients, overdue accounts, credit utilization, or why clients have specific risk scores."

var (
	reLocalHighRisk = regexp.MustCompile(`high[\s-]?risk|risky`)
	reLocalOverdue  = regexp.MustCompile(`overdue|past due|days past`)
	reLocalCredit   = regexp.MustCompile(`credit|utilization`)
	reLocalTotals   = regexp.MustCompile(`\b(total|ar|receivables?)\b`)
	reLocalOrders   = regexp.MustCompile(`orders?|frequency`)
	reLocalWhy      = regexp.MustCompile(`\bwhy\b`)
	reLocalScore    = regexp.MustCompile(`risk|score`)
)

// LocalResponder answers common questions from the records alone, without
// calling a model. It ignores history.
type LocalResponder struct{}

// Ask implements Responder.
func (LocalResponder) Ask(_ context.Context, _ []anthropic.Message, question string, records []model.ClientRecord, onToken func(string) error) (string, error) {
	answer := Answer(question, records)
	if onToken != nil {
		if err := onToken(answer); err != nil {
			return "", err
		}
	}
	return answer, nil
}

// Answer picks a canned answer by keyword, checked in a fixed order.
func Answer(question string, records []model.ClientRecord) string {
	q := strings.ToLower(question)

	switch {
	case reLocalHighRisk.MatchString(q):
		high := filter(records, func(r model.ClientRecord) bool { return r.RiskCategory == model.RiskHigh })
		return fmt.Sprintf("You have %d high-risk clients with a total AR value of %s. "+
			"Their average risk score is %d/100. I recommend reviewing these accounts for immediate follow-up.",
			len(high), portfolio.FormatCurrency(portfolio.TotalAR(high)), portfolio.AverageScore(high))

	case reLocalOverdue.MatchString(q):
		s := portfolio.Summarize(records)
		return fmt.Sprintf("Payment status breakdown:\n"+
			"• 90+ days overdue: %d clients (%s)\n"+
			"• 60-89 days: %d clients\n"+
			"• 30-59 days: %d clients\n\n"+
			"The 90+ days overdue accounts need immediate attention.",
			s.Overdue90, portfolio.FormatCurrency(s.Overdue90Value), s.Overdue60, s.Overdue30)

	case reLocalCredit.MatchString(q):
		s := portfolio.Summarize(records)
		return fmt.Sprintf("%d clients have credit utilization above %d%%, which is a significant risk factor. "+
			"Their total outstanding is %s.",
			s.HighUtilization, portfolio.HighUtilizationPct, portfolio.FormatCurrency(s.HighUtilizationValue))

	case reLocalTotals.MatchString(q):
		return fmt.Sprintf("Your total accounts receivable is %s across %s clients. The average risk score is %d/100.",
			portfolio.FormatCurrency(portfolio.TotalAR(records)), portfolio.FormatCount(len(records)), portfolio.AverageScore(records))

	case strings.Contains(q, "reminder"):
		s := portfolio.Summarize(records)
		return fmt.Sprintf("%d clients have received %d or more payment reminders, indicating potential payment issues. "+
			"Consider escalating collection efforts for these accounts.", s.FrequentReminders, portfolio.FrequentReminders)

	case reLocalOrders.MatchString(q):
		s := portfolio.Summarize(records)
		return fmt.Sprintf("%d clients have low order frequency (less than %.0f orders in 60 days), "+
			"which may indicate reduced business activity or potential churn risk.", s.LowOrderFrequency, portfolio.LowOrderFrequency)

	case reLocalWhy.MatchString(q) && reLocalScore.MatchString(q):
		return Methodology()
	}

	return HelpText
}

// Methodology describes how scores are computed.
func Methodology() string {
	return "Risk scores are calculated using a weighted formula:\n" +
		"• Days Past Due (50%): 0-90 days normalized\n" +
		"• Credit Utilization (25%): 0-85% normalized\n" +
		"• Reminders Count (15%): 0-3 normalized\n" +
		"• Avg Orders 60 Days (10%): Lower orders = higher risk\n\n" +
		"Thresholds: High Risk ≥ 65, Medium 35-64, Low < 35"
}

func filter(records []model.ClientRecord, keep func(model.ClientRecord) bool) []model.ClientRecord {
	var out []model.ClientRecord
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
