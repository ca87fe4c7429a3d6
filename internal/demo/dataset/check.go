package dataset

import (
	"errors"
	"fmt"
)

// Check verifies the invariants the demo queries rely on: every event
// references an existing campaign and publisher, only conversions carry
// revenue, dates fall inside the event window and the event count matches.
func Check(tables Tables, wantEvents int) error {
	var errs []error
	if len(tables.Events) != wantEvents {
		errs = append(errs, fmt.Errorf("expected %d events, got %d", wantEvents, len(tables.Events)))
	}
	if len(tables.Campaigns) == 0 || len(tables.Publishers) == 0 {
		errs = append(errs, errors.New("campaigns and publishers must not be empty"))
	}

	campaigns := make(map[int64]struct{}, len(tables.Campaigns))
	for _, campaign := range tables.Campaigns {
		campaigns[campaign.CampaignID] = struct{}{}
	}
	publishers := make(map[int64]struct{}, len(tables.Publishers))
	for _, publisher := range tables.Publishers {
		publishers[publisher.PublisherID] = struct{}{}
	}

	first, last := DaysSinceEpoch(FirstEventDate), DaysSinceEpoch(LastEventDate)
	var orphanCampaigns, orphanPublishers, revenueMismatch, outOfRange int
	for _, event := range tables.Events {
		if _, ok := campaigns[event.CampaignID]; !ok {
			orphanCampaigns++
		}
		if _, ok := publishers[event.PublisherID]; !ok {
			orphanPublishers++
		}
		if (event.EventType == "conversion") != (event.RevenueUSD != nil) {
			revenueMismatch++
		}
		if event.EventDate < first || event.EventDate > last {
			outOfRange++
		}
	}
	if orphanCampaigns > 0 {
		errs = append(errs, fmt.Errorf("%d events reference unknown campaigns", orphanCampaigns))
	}
	if orphanPublishers > 0 {
		errs = append(errs, fmt.Errorf("%d events reference unknown publishers", orphanPublishers))
	}
	if revenueMismatch > 0 {
		errs = append(errs, fmt.Errorf("%d events break the conversion-only revenue rule", revenueMismatch))
	}
	if outOfRange > 0 {
		errs = append(errs, fmt.Errorf("%d events fall outside %s..%s", outOfRange, FirstEventDate.Format("2006-01-02"), LastEventDate.Format("2006-01-02")))
	}
	return errors.Join(errs...)
}

// Mix counts events per type.
func Mix(events []AdEvent) map[string]int {
	counts := make(map[string]int, 3)
	for _, event := range events {
		counts[event.EventType]++
	}
	return counts
}
