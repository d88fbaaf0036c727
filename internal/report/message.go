package report

import (
	"fmt"
	"strings"

	"github.com/ConnecteDigital/connect-financeiro/internal/core"
)

const (
	// The renderer shows at most 5 category buckets and 3 top transactions
	// per list, independent of how many the aggregation supplied. This
	// truncation is the authoritative user-visible contract.
	maxCategories = 5
	maxTop        = 3
)

var rankMarkers = [maxCategories]string{"🥇", "🥈", "🥉", "4️⃣", "5️⃣"}

// RenderMessage turns a report into the WhatsApp text body. Sections backed
// by an empty list are omitted entirely, header included.
func RenderMessage(r Report, displayName string) string {
	var b strings.Builder

	b.WriteString("📊 *RELATÓRIO FINANCEIRO*\n")
	fmt.Fprintf(&b, "👤 %s\n", displayName)
	fmt.Fprintf(&b, "📅 %s\n\n", r.Period)

	b.WriteString("💰 *RESUMO GERAL*\n")
	fmt.Fprintf(&b, "💚 Entradas: %s\n", r.TotalIncome.FormatBRL())
	fmt.Fprintf(&b, "💸 Saídas: %s\n", r.TotalExpense.FormatBRL())
	fmt.Fprintf(&b, "%s Resultado: %s\n", balanceMarker(r.Balance), r.Balance.FormatBRL())
	fmt.Fprintf(&b, "📋 Total de transações: %d\n\n", r.TransactionCount)

	if len(r.ExpensesByCategory) > 0 {
		b.WriteString("📊 *GASTOS POR CATEGORIA*\n")
		for i, bucket := range truncateBuckets(r.ExpensesByCategory) {
			fmt.Fprintf(&b, "%s %s: %s\n", marker(i), bucket.Category, bucket.Amount.FormatBRL())
		}
		b.WriteString("\n")
	}

	if len(r.TopIncomes) > 0 {
		b.WriteString("💚 *PRINCIPAIS ENTRADAS*\n")
		writeTopLines(&b, r.TopIncomes)
	}

	if len(r.TopExpenses) > 0 {
		b.WriteString("💸 *PRINCIPAIS DESPESAS*\n")
		writeTopLines(&b, r.TopExpenses)
	}

	b.WriteString("🚀 *Connect Financeiro*\n")
	b.WriteString("Seu controle financeiro sempre em dia!")

	return b.String()
}

func writeTopLines(b *strings.Builder, lines []TransactionLine) {
	if len(lines) > maxTop {
		lines = lines[:maxTop]
	}
	for i, line := range lines {
		fmt.Fprintf(b, "%s %s: %s\n", marker(i), line.Description, line.Amount.FormatBRL())
	}
	b.WriteString("\n")
}

func truncateBuckets(buckets []CategoryBucket) []CategoryBucket {
	if len(buckets) > maxCategories {
		return buckets[:maxCategories]
	}
	return buckets
}

func marker(rank int) string {
	if rank < len(rankMarkers) {
		return rankMarkers[rank]
	}
	return "•"
}

func balanceMarker(balance core.Money) string {
	if balance.Cents >= 0 {
		return "✅"
	}
	return "❌"
}
