package feed

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/threatintel/internal/clock"
	"github.com/smallbiznis/threatintel/internal/config"
	indicatordomain "github.com/smallbiznis/threatintel/internal/indicator/domain"
	indicatorrepository "github.com/smallbiznis/threatintel/internal/indicator/repository"
	indicatorservice "github.com/smallbiznis/threatintel/internal/indicator/service"
	malwaredomain "github.com/smallbiznis/threatintel/internal/malware/domain"
	malwarerepository "github.com/smallbiznis/threatintel/internal/malware/repository"
	malwareservice "github.com/smallbiznis/threatintel/internal/malware/service"
	"github.com/smallbiznis/threatintel/internal/migration"
	obsmetrics "github.com/smallbiznis/threatintel/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testNow = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func setupLoader(t *testing.T, ingest config.IngestConfig) (*Loader, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, migration.Prepare(db))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	log := zap.NewNop()
	fake := clock.NewFakeClock(testNow)
	m, err := obsmetrics.NewIngestMetrics(prometheus.NewRegistry(), obsmetrics.Config{Environment: "test"})
	require.NoError(t, err)

	indicatorSvc := indicatorservice.New(indicatorservice.Params{
		DB:      db,
		Log:     log,
		GenID:   node,
		Repo:    indicatorrepository.Provide(),
		Metrics: m,
	})
	malwareSvc := malwareservice.New(malwareservice.Params{
		DB:           db,
		Log:          log,
		GenID:        node,
		Clock:        fake,
		Repo:         malwarerepository.Provide(),
		IndicatorSvc: indicatorSvc,
	})

	loader := NewLoader(LoaderParams{
		Log:          log,
		Clock:        fake,
		Ingest:       config.NewStaticIngestConfigHolder(ingest),
		IndicatorSvc: indicatorSvc,
		MalwareSvc:   malwareSvc,
		Metrics:      m,
	})
	return loader, db
}

func writeFeed(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const sampleFeed = `{
  "source": "abuse-feed",
  "indicators": [
    {"type": "Domain", "value": " Evil.example ", "createdDate": 1700000000, "updatedDate": 1700000100},
    {"type": "ipv4", "value": "   "},
    {"type": "ipv4", "value": "203.0.113.7"}
  ],
  "malware": [
    {"name": "Qakbot", "family": "banker", "metadata": {"tlp": "amber"},
     "indicators": [{"type": "domain", "value": "Evil.example"}, {"type": "url", "value": "http://drop.example/a"}]}
  ]
}`

func TestLoader_LoadFile(t *testing.T) {
	loader, db := setupLoader(t, config.DefaultIngestConfig())
	path := writeFeed(t, t.TempDir(), "batch.json", sampleFeed)

	result, err := loader.LoadFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "abuse-feed", result.Source)
	assert.Len(t, result.RunID, 26)
	assert.Len(t, result.IndicatorIDs, 2)
	require.Len(t, result.MalwareIDs, 1)

	var indicators []indicatordomain.Indicator
	require.NoError(t, db.Order("value ASC").Find(&indicators).Error)
	require.Len(t, indicators, 3)

	byValue := map[string]indicatordomain.Indicator{}
	for _, item := range indicators {
		byValue[item.Value] = item
	}
	evil := byValue["Evil.example"]
	assert.Equal(t, result.IndicatorIDs[0], evil.ID.String())
	assert.Equal(t, int64(1700000000), evil.CreatedDate)
	assert.Equal(t, testNow.Unix(), evil.UpdatedDate)

	ip := byValue["203.0.113.7"]
	assert.Equal(t, testNow.Unix(), ip.CreatedDate)
	assert.Equal(t, testNow.Unix(), ip.UpdatedDate)

	var links int64
	require.NoError(t, db.Model(&malwaredomain.MalwareIndicator{}).Count(&links).Error)
	assert.Equal(t, int64(2), links)
}

func TestLoader_DefaultsSourceToFileName(t *testing.T) {
	loader, _ := setupLoader(t, config.DefaultIngestConfig())
	path := writeFeed(t, t.TempDir(), "nosource.json", `{"indicators":[{"type":"domain","value":"a.example"}]}`)

	result, err := loader.LoadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "nosource.json", result.Source)
	assert.Empty(t, result.MalwareIDs)
}

func TestLoader_RejectsOversizedBatch(t *testing.T) {
	cfg := config.DefaultIngestConfig()
	cfg.MaxBatchSize = 2
	loader, db := setupLoader(t, cfg)

	batch := &Batch{
		Source: "big",
		Indicators: []indicatordomain.IndicatorInput{
			{Type: "domain", Value: "a.example"},
			{Type: "domain", Value: "b.example"},
		},
		Malware: []malwaredomain.UpsertRequest{
			{Name: "Extra", Indicators: []indicatordomain.IndicatorInput{{Type: "domain", Value: "c.example"}}},
		},
	}

	_, err := loader.Load(context.Background(), batch)
	assert.ErrorIs(t, err, ErrBatchTooLarge)

	var count int64
	require.NoError(t, db.Model(&indicatordomain.Indicator{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestLoader_InvalidJSON(t *testing.T) {
	loader, _ := setupLoader(t, config.DefaultIngestConfig())
	path := writeFeed(t, t.TempDir(), "broken.json", `{"indicators": [`)

	_, err := loader.LoadFile(context.Background(), path)
	assert.ErrorIs(t, err, ErrInvalidBatch)
}

func TestLoader_MalwareErrorStopsBatch(t *testing.T) {
	loader, db := setupLoader(t, config.DefaultIngestConfig())

	_, err := loader.Load(context.Background(), &Batch{
		Source:     "bad-malware",
		Indicators: []indicatordomain.IndicatorInput{{Type: "domain", Value: "kept.example"}},
		Malware:    []malwaredomain.UpsertRequest{{Name: "   "}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, malwaredomain.ErrInvalidName)

	var count int64
	require.NoError(t, db.Model(&indicatordomain.Indicator{}).Where("value = ?", "kept.example").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestDecode_Size(t *testing.T) {
	batch, err := Decode(strings.NewReader(sampleFeed))
	require.NoError(t, err)
	assert.Equal(t, 5, batch.Size())
	assert.Equal(t, 0, (*Batch)(nil).Size())
}

func TestWithDefaultDates(t *testing.T) {
	got := withDefaultDates([]indicatordomain.IndicatorInput{
		{Value: "a"},
		{Value: "b", CreatedDate: 10},
		{Value: "c", CreatedDate: 10, UpdatedDate: 20},
	}, 99, nil)

	assert.Equal(t, int64(99), got[0].CreatedDate)
	assert.Equal(t, int64(99), got[0].UpdatedDate)
	assert.Equal(t, int64(10), got[1].UpdatedDate)
	assert.Equal(t, int64(20), got[2].UpdatedDate)
	for _, in := range got {
		assert.Nil(t, in.ExpirationDate)
	}
}

func TestWithDefaultDates_Expiration(t *testing.T) {
	explicit := int64(500)
	expires := int64(1000)
	got := withDefaultDates([]indicatordomain.IndicatorInput{
		{Value: "a"},
		{Value: "b", ExpirationDate: &explicit},
	}, 99, &expires)

	require.NotNil(t, got[0].ExpirationDate)
	assert.Equal(t, int64(1000), *got[0].ExpirationDate)
	require.NotNil(t, got[1].ExpirationDate)
	assert.Equal(t, int64(500), *got[1].ExpirationDate)
}

func TestLoader_TTLDaysSetsExpiration(t *testing.T) {
	loader, db := setupLoader(t, config.DefaultIngestConfig())
	body := `{
  "source": "ttl-feed",
  "ttlDays": 30,
  "indicators": [
    {"type": "domain", "value": "short.example"},
    {"type": "domain", "value": "pinned.example", "expirationDate": 1800000000}
  ],
  "malware": [{"name": "Emotet", "indicators": [{"type": "url", "value": "http://emotet.example/x"}]}]
}`
	path := writeFeed(t, t.TempDir(), "ttl.json", body)

	_, err := loader.LoadFile(context.Background(), path)
	require.NoError(t, err)

	want := testNow.Unix() + 30*86400
	for value, expected := range map[string]int64{
		"short.example":           want,
		"http://emotet.example/x": want,
		"pinned.example":          1800000000,
	} {
		var item indicatordomain.Indicator
		require.NoError(t, db.Where("value = ?", value).First(&item).Error)
		require.NotNil(t, item.ExpirationDate, value)
		assert.Equal(t, expected, *item.ExpirationDate, value)
	}
}

func TestLoader_RejectsNegativeTTLDays(t *testing.T) {
	loader, db := setupLoader(t, config.DefaultIngestConfig())
	path := writeFeed(t, t.TempDir(), "neg.json", `{"ttlDays": -1, "indicators": [{"type": "domain", "value": "a.example"}]}`)

	_, err := loader.LoadFile(context.Background(), path)
	require.ErrorIs(t, err, ErrInvalidBatch)

	var count int64
	require.NoError(t, db.Model(&indicatordomain.Indicator{}).Count(&count).Error)
	assert.Zero(t, count)
}
