package notifier

import (
	"fmt"
	"strings"
	"time"

	"GemFarm/internal/model"
)

// FormatFarmSnapshot formats a farm snapshot into a Telegram message.
func FormatFarmSnapshot(snap *model.FarmSnapshot) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("🌾 <b>Farm %s</b> | %s\n\n", snap.FarmID, time.Unix(snap.Timestamp, 0).UTC().Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("Gems staked: %d\n", snap.TotalStaked))
	b.WriteString(fmt.Sprintf("Active farmers: %d\n", snap.ActiveFarmerCount))

	for _, tr := range snap.Tracks {
		b.WriteString(fmt.Sprintf("\n💰 <b>Reward %s</b> (%s)\n", tr.Track, tr.Currency))
		if tr.TotalFunded == 0 {
			b.WriteString("  not funded\n")
			continue
		}
		b.WriteString(fmt.Sprintf("  funded: %d | claimed: %d | owed: %d\n", tr.TotalFunded, tr.TotalClaimed, tr.TotalClaimable))
		b.WriteString(fmt.Sprintf("  rate: %s/s\n", trimDecimal(tr.RewardRate)))
		if tr.RewardEndTs > snap.Timestamp {
			left := time.Duration(tr.RewardEndTs-snap.Timestamp) * time.Second
			b.WriteString(fmt.Sprintf("  window closes in %s\n", left))
		} else {
			b.WriteString("  window closed\n")
		}
	}
	return b.String()
}

// FormatFarmList formats the list of hosted farms.
func FormatFarmList(ids []string) string {
	if len(ids) == 0 {
		return "No farms yet."
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📋 <b>Farms</b> (%d)\n\n", len(ids)))
	for _, id := range ids {
		b.WriteString("• " + id + "\n")
	}
	return b.String()
}

// trimDecimal drops trailing fractional zeros from a fixed-point string.
func trimDecimal(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
