// Package dataset builds the synthetic AdTech demo dataset and publishes it
// to the object store as Parquet files plus a manifest.
package dataset

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

const (
	TableCampaigns  = "campaigns"
	TablePublishers = "publishers"
	TableAdEvents   = "ad_events"
)

type Campaign struct {
	CampaignID   int64   `parquet:"campaign_id"`
	CampaignName string  `parquet:"campaign_name"`
	Advertiser   string  `parquet:"advertiser"`
	Industry     string  `parquet:"industry"`
	CampaignType string  `parquet:"campaign_type"`
	DailyBudget  float64 `parquet:"daily_budget"`
	TargetDevice string  `parquet:"target_device"`
	StartDate    int32   `parquet:"start_date,date"`
	Status       string  `parquet:"status"`
}

type Publisher struct {
	PublisherID     int64  `parquet:"publisher_id"`
	PublisherName   string `parquet:"publisher_name"`
	Category        string `parquet:"category"`
	Tier            string `parquet:"tier"`
	Country         string `parquet:"country"`
	MonthlyVisitors int64  `parquet:"monthly_visitors"`
	MobileFriendly  bool   `parquet:"mobile_friendly"`
}

// AdEvent is one row of the fact table. RevenueUSD is set only for
// conversions.
type AdEvent struct {
	EventID     int64    `parquet:"event_id"`
	CampaignID  int64    `parquet:"campaign_id"`
	PublisherID int64    `parquet:"publisher_id"`
	EventDate   int32    `parquet:"event_date,date"`
	EventHour   int32    `parquet:"event_hour"`
	EventType   string   `parquet:"event_type"`
	DeviceType  string   `parquet:"device_type"`
	Country     string   `parquet:"country"`
	CostUSD     float64  `parquet:"cost_usd"`
	RevenueUSD  *float64 `parquet:"revenue_usd"`
}

type Tables struct {
	Campaigns  []Campaign
	Publishers []Publisher
	Events     []AdEvent
}

type advertiser struct {
	name      string
	industry  string
	campaigns []string
}

var advertisers = []advertiser{
	{"AutoCorp", "automotive", []string{"EV_Launch_2024", "Summer_Sales", "Holiday_Promo"}},
	{"TechInc", "tech", []string{"AI_Product_Launch", "Mobile_App_Install", "B2B_Lead_Gen"}},
	{"FinanceFirst", "finance", []string{"Credit_Card_Signup", "Investment_App", "Insurance_Awareness"}},
	{"RetailGiant", "retail", []string{"Back_to_School", "Black_Friday", "Spring_Collection"}},
	{"HealthPlus", "healthcare", []string{"Wellness_App", "Telemedicine", "Fitness_Tracker"}},
}

type publisherCategory struct {
	name   string
	titles []string
}

var publisherCategories = []publisherCategory{
	{"news", []string{"Global News Network", "Daily Herald", "Breaking News Today", "World Report", "News Central"}},
	{"sports", []string{"Sports Zone", "Athletic Times", "Game Day News", "Sports Weekly", "Champion Report"}},
	{"entertainment", []string{"Entertainment Tonight", "Celebrity Weekly", "Show Business", "Pop Culture Daily"}},
	{"tech", []string{"Tech Insider", "Digital Trends", "Innovation Daily", "Future Tech", "Code Review"}},
}

const (
	// typesPerCampaign variants are generated for every base campaign.
	typesPerCampaign = 2

	MaxCampaigns  = 5 * 3 * typesPerCampaign
	MaxPublishers = 19
)

var (
	campaignTypes = []string{"display", "video", "search"}

	// 2024 months are weighted towards the holiday season.
	monthWeights2024 = []int{8, 8, 9, 9, 10, 10, 11, 11, 12, 12, 15, 15}

	FirstEventDate = time.Date(2022, time.January, 1, 0, 0, 0, 0, time.UTC)
	LastEventDate  = time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC)
)

type Generator struct {
	rnd *rand.Rand
}

func NewGenerator(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

// Generate builds all three tables. The same seed and sizes always yield the
// same rows.
func (g *Generator) Generate(cfg Config) Tables {
	campaigns := g.Campaigns(cfg.Campaigns)
	publishers := g.Publishers(cfg.Publishers)
	return Tables{
		Campaigns:  campaigns,
		Publishers: publishers,
		Events:     g.Events(cfg.Events, len(campaigns), len(publishers)),
	}
}

func (g *Generator) Campaigns(n int) []Campaign {
	out := make([]Campaign, 0, min(n, MaxCampaigns))
	id := int64(1)
	for _, adv := range advertisers {
		for _, base := range adv.campaigns {
			for _, index := range g.rnd.Perm(len(campaignTypes))[:typesPerCampaign] {
				if len(out) >= n {
					return out
				}
				campaignType := campaignTypes[index]
				start := time.Date(2022+g.rnd.Intn(3), time.Month(1+g.rnd.Intn(12)), 1+g.rnd.Intn(28), 0, 0, 0, 0, time.UTC)
				out = append(out, Campaign{
					CampaignID:   id,
					CampaignName: fmt.Sprintf("%s_%s_%s", adv.name, base, campaignType),
					Advertiser:   adv.name,
					Industry:     adv.industry,
					CampaignType: campaignType,
					DailyBudget:  round(1000+g.rnd.Float64()*24000, 2),
					TargetDevice: pickOne(g.rnd, []string{"mobile", "desktop", "all"}),
					StartDate:    DaysSinceEpoch(start),
					Status:       g.campaignStatus(start),
				})
				id++
			}
		}
	}
	return out
}

// campaignStatus makes older campaigns likely completed and recent ones
// likely active, measured at the end of 2024.
func (g *Generator) campaignStatus(start time.Time) string {
	daysRunning := int(LastEventDate.Sub(start).Hours() / 24)
	switch {
	case daysRunning > 365:
		return pickOne(g.rnd, []string{"completed", "completed", "paused"})
	case daysRunning > 180:
		return pickOne(g.rnd, []string{"active", "completed", "paused"})
	default:
		return pickOne(g.rnd, []string{"active", "active", "paused"})
	}
}

func (g *Generator) Publishers(n int) []Publisher {
	out := make([]Publisher, 0, min(n, MaxPublishers))
	id := int64(1)
	for _, category := range publisherCategories {
		for _, title := range category.titles {
			if len(out) >= n {
				return out
			}
			tier := pickOne(g.rnd, []string{"premium", "standard"})
			visitors := int64(500_000 + g.rnd.Intn(4_500_001))
			if tier == "premium" {
				visitors = int64(5_000_000 + g.rnd.Intn(45_000_001))
			}
			out = append(out, Publisher{
				PublisherID:     id,
				PublisherName:   title,
				Category:        category.name,
				Tier:            tier,
				Country:         pickOne(g.rnd, []string{"US", "UK", "DE", "FR", "CA"}),
				MonthlyVisitors: visitors,
				MobileFriendly:  g.rnd.Intn(2) == 1,
			})
			id++
		}
	}
	return out
}

// Events draws n events referencing campaign ids 1..campaigns and publisher
// ids 1..publishers.
func (g *Generator) Events(n, campaigns, publishers int) []AdEvent {
	out := make([]AdEvent, 0, n)
	for i := 0; i < n; i++ {
		eventType := g.pickEventType()
		cost, revenue := g.pickMoney(eventType)
		out = append(out, AdEvent{
			EventID:     int64(i + 1),
			CampaignID:  int64(1 + g.rnd.Intn(campaigns)),
			PublisherID: int64(1 + g.rnd.Intn(publishers)),
			EventDate:   DaysSinceEpoch(g.pickDate()),
			EventHour:   int32(g.rnd.Intn(24)),
			EventType:   eventType,
			DeviceType:  pickOne(g.rnd, []string{"mobile", "desktop", "tablet"}),
			Country:     pickOne(g.rnd, []string{"US", "UK", "DE", "FR", "CA", "AU"}),
			CostUSD:     cost,
			RevenueUSD:  revenue,
		})
	}
	return out
}

func (g *Generator) pickEventType() string {
	p := g.rnd.Float64()
	switch {
	case p < 0.85:
		return "impression"
	case p < 0.97:
		return "click"
	default:
		return "conversion"
	}
}

func (g *Generator) pickMoney(eventType string) (float64, *float64) {
	switch eventType {
	case "impression":
		return round(0.0005+g.rnd.Float64()*0.0025, 4), nil
	case "click":
		return round(0.20+g.rnd.Float64()*4.80, 4), nil
	default:
		revenue := round(15+g.rnd.Float64()*135, 4)
		return round(5+g.rnd.Float64()*45, 4), &revenue
	}
}

// pickDate puts 20% of events in 2022, 20% in 2023 and the rest in 2024.
func (g *Generator) pickDate() time.Time {
	var (
		year  int
		month time.Month
	)
	switch w := g.rnd.Float64(); {
	case w < 0.2:
		year, month = 2022, time.Month(1+g.rnd.Intn(12))
	case w < 0.4:
		year, month = 2023, time.Month(1+g.rnd.Intn(12))
	default:
		year, month = 2024, time.Month(1+weightedIndex(g.rnd, monthWeights2024))
	}
	days := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	return time.Date(year, month, 1+g.rnd.Intn(days), 0, 0, 0, 0, time.UTC)
}

func weightedIndex(r *rand.Rand, weights []int) int {
	total := 0
	for _, w := range weights {
		total += w
	}
	pick := r.Intn(total)
	for i, w := range weights {
		if pick < w {
			return i
		}
		pick -= w
	}
	return len(weights) - 1
}

// DaysSinceEpoch converts a UTC date to the Parquet DATE representation.
func DaysSinceEpoch(t time.Time) int32 {
	return int32(t.Unix() / 86400)
}

func DateFromDays(days int32) time.Time {
	return time.Unix(int64(days)*86400, 0).UTC()
}

func round(value float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(value*scale) / scale
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}
