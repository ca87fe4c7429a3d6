package dataset

import (
	"reflect"
	"strings"
	"testing"
)

func TestGeneratorIsDeterministic(t *testing.T) {
	cfg := Config{Campaigns: MaxCampaigns, Publishers: MaxPublishers, Events: 500, Seed: 7}
	a := NewGenerator(cfg.Seed).Generate(cfg)
	b := NewGenerator(cfg.Seed).Generate(cfg)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("same seed produced different tables")
	}
	c := NewGenerator(8).Generate(cfg)
	if reflect.DeepEqual(a.Events, c.Events) {
		t.Fatal("different seeds produced identical events")
	}
}

func TestCampaignsCoverCatalogue(t *testing.T) {
	campaigns := NewGenerator(1).Campaigns(100)
	if len(campaigns) != MaxCampaigns {
		t.Fatalf("len(campaigns) = %d, want %d", len(campaigns), MaxCampaigns)
	}
	autoCorp := 0
	for i, campaign := range campaigns {
		if campaign.CampaignID != int64(i+1) {
			t.Fatalf("campaign %d has id %d", i, campaign.CampaignID)
		}
		if campaign.DailyBudget < 1000 || campaign.DailyBudget > 25000 {
			t.Fatalf("DailyBudget = %v", campaign.DailyBudget)
		}
		start := DateFromDays(campaign.StartDate)
		if start.Year() < 2022 || start.Year() > 2024 || start.Day() > 28 {
			t.Fatalf("StartDate = %s", start)
		}
		if campaign.Advertiser == "AutoCorp" {
			autoCorp++
		}
	}
	if autoCorp != 6 {
		t.Fatalf("AutoCorp campaigns = %d", autoCorp)
	}
	if got := NewGenerator(1).Campaigns(4); len(got) != 4 {
		t.Fatalf("len(Campaigns(4)) = %d", len(got))
	}
}

func TestPublishersVisitorRanges(t *testing.T) {
	publishers := NewGenerator(3).Publishers(MaxPublishers)
	if len(publishers) != MaxPublishers {
		t.Fatalf("len(publishers) = %d", len(publishers))
	}
	for _, publisher := range publishers {
		switch publisher.Tier {
		case "premium":
			if publisher.MonthlyVisitors < 5_000_000 || publisher.MonthlyVisitors > 50_000_000 {
				t.Fatalf("premium visitors = %d", publisher.MonthlyVisitors)
			}
		case "standard":
			if publisher.MonthlyVisitors < 500_000 || publisher.MonthlyVisitors > 5_000_000 {
				t.Fatalf("standard visitors = %d", publisher.MonthlyVisitors)
			}
		default:
			t.Fatalf("Tier = %q", publisher.Tier)
		}
	}
}

func TestEventMixAndRanges(t *testing.T) {
	const n = 20000
	events := NewGenerator(42).Events(n, MaxCampaigns, MaxPublishers)
	mix := Mix(events)
	within := func(got int, share, tolerance float64) bool {
		ratio := float64(got) / n
		return ratio > share-tolerance && ratio < share+tolerance
	}
	if !within(mix["impression"], 0.85, 0.02) || !within(mix["click"], 0.12, 0.02) || !within(mix["conversion"], 0.03, 0.01) {
		t.Fatalf("mix = %#v", mix)
	}

	years := map[int]int{}
	for _, event := range events {
		years[DateFromDays(event.EventDate).Year()]++
		switch event.EventType {
		case "impression":
			if event.CostUSD < 0.0005 || event.CostUSD > 0.003 {
				t.Fatalf("impression cost = %v", event.CostUSD)
			}
		case "click":
			if event.CostUSD < 0.2 || event.CostUSD > 5 {
				t.Fatalf("click cost = %v", event.CostUSD)
			}
		case "conversion":
			if event.RevenueUSD == nil || *event.RevenueUSD < 15 || *event.RevenueUSD > 150 {
				t.Fatalf("conversion revenue = %v", event.RevenueUSD)
			}
		}
		if event.EventHour < 0 || event.EventHour > 23 {
			t.Fatalf("EventHour = %d", event.EventHour)
		}
	}
	if !within(years[2024], 0.6, 0.03) || !within(years[2022], 0.2, 0.03) {
		t.Fatalf("years = %#v", years)
	}
}

func TestCheckAcceptsGeneratedTables(t *testing.T) {
	cfg := Config{Campaigns: 10, Publishers: 5, Events: 2000, Seed: 11}
	tables := NewGenerator(cfg.Seed).Generate(cfg)
	if err := Check(tables, cfg.Events); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
}

func TestCheckReportsViolations(t *testing.T) {
	revenue := 20.0
	tables := Tables{
		Campaigns:  []Campaign{{CampaignID: 1}},
		Publishers: []Publisher{{PublisherID: 1}},
		Events: []AdEvent{
			{EventID: 1, CampaignID: 2, PublisherID: 1, EventType: "impression", EventDate: DaysSinceEpoch(FirstEventDate)},
			{EventID: 2, CampaignID: 1, PublisherID: 9, EventType: "click", RevenueUSD: &revenue, EventDate: DaysSinceEpoch(LastEventDate)},
			{EventID: 3, CampaignID: 1, PublisherID: 1, EventType: "conversion", EventDate: DaysSinceEpoch(LastEventDate) + 1},
		},
	}
	err := Check(tables, 4)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"expected 4 events", "unknown campaigns", "unknown publishers", "2 events break", "outside"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("Check() error = %v, missing %q", err, want)
		}
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	cfg, err := LoadConfigFromEnv(mapLookup(map[string]string{
		"QUERYBRIDGE_DEMO_CAMPAIGNS":     "500",
		"QUERYBRIDGE_DEMO_EVENTS":        "1000",
		"QUERYBRIDGE_DEMO_ROWS_PER_FILE": "300",
		"QUERYBRIDGE_DEMO_SEED":          "99",
	}))
	if err != nil {
		t.Fatalf("LoadConfigFromEnv() error = %v", err)
	}
	want := Config{Campaigns: MaxCampaigns, Publishers: MaxPublishers, Events: 1000, RowsPerFile: 300, Seed: 99}
	if cfg != want {
		t.Fatalf("cfg = %+v, want %+v", cfg, want)
	}

	for _, env := range []map[string]string{
		{"QUERYBRIDGE_DEMO_EVENTS": "0"},
		{"QUERYBRIDGE_DEMO_EVENTS": "lots"},
		{"QUERYBRIDGE_DEMO_SEED": "x"},
	} {
		if _, err := LoadConfigFromEnv(mapLookup(env)); err == nil {
			t.Fatalf("expected error for %#v", env)
		}
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
