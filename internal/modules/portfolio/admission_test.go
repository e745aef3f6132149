package portfolio

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaylee/stocklab-trader/internal/domain"
	testhelper "github.com/jaylee/stocklab-trader/internal/testing"
)

func newAdmission(t *testing.T, cfg AdmissionConfig) (*AdmissionService, *PositionRepository) {
	t.Helper()
	db, _ := testhelper.NewTestDB(t, "portfolio")
	repo := NewPositionRepository(db.Conn(), zerolog.Nop())
	return NewAdmissionService(repo, cfg, zerolog.Nop()), repo
}

func defaultAdmissionConfig() AdmissionConfig {
	return AdmissionConfig{
		MaxPositions:        10,
		MaxPositionsSector:  2,
		SectorConcentration: 0.4,
	}
}

func fill(t *testing.T, repo *PositionRepository, n int, sector string) {
	t.Helper()
	for i := 0; i < n; i++ {
		p := samplePosition(domain.MarketUS, fmt.Sprintf("T%04d", i))
		p.Sector = sector
		require.NoError(t, repo.Create(p))
	}
}

func TestAdmissionEmptyBook(t *testing.T) {
	svc, _ := newAdmission(t, defaultAdmissionConfig())

	decision, err := svc.Check(domain.MarketUS, "AAPL", "tech")
	require.NoError(t, err)
	assert.True(t, decision.Admit)
}

func TestAdmissionAlreadyHolding(t *testing.T) {
	svc, repo := newAdmission(t, defaultAdmissionConfig())
	require.NoError(t, repo.Create(samplePosition(domain.MarketUS, "AAPL")))

	decision, err := svc.Check(domain.MarketUS, "AAPL", "tech")
	require.NoError(t, err)
	assert.False(t, decision.Admit)
	assert.Equal(t, domain.SkipAlreadyHolding, decision.Reason)
}

func TestAdmissionSlotLimit(t *testing.T) {
	cfg := defaultAdmissionConfig()
	cfg.MaxPositions = 3
	svc, repo := newAdmission(t, cfg)
	fill(t, repo, 3, "")

	decision, err := svc.Check(domain.MarketUS, "AAPL", "")
	require.NoError(t, err)
	assert.False(t, decision.Admit)
	assert.Equal(t, domain.SkipSlotLimit, decision.Reason)
}

func TestAdmissionSectorPositionCap(t *testing.T) {
	svc, repo := newAdmission(t, defaultAdmissionConfig())
	fill(t, repo, 2, "tech")
	fill(t, repo, 3, "energy")

	decision, err := svc.Check(domain.MarketUS, "AAPL", "tech")
	require.NoError(t, err)
	assert.False(t, decision.Admit)
	assert.Equal(t, domain.SkipSectorLimit, decision.Reason)
}

func TestAdmissionSectorConcentration(t *testing.T) {
	cfg := defaultAdmissionConfig()
	cfg.MaxPositionsSector = 5
	svc, repo := newAdmission(t, cfg)

	// One tech of two total; admitting another tech makes 2/3 ≈ 0.67 > 0.4.
	fill(t, repo, 1, "tech")
	fill(t, repo, 1, "energy")

	decision, err := svc.Check(domain.MarketUS, "AAPL", "tech")
	require.NoError(t, err)
	assert.False(t, decision.Admit)
	assert.Equal(t, domain.SkipSectorLimit, decision.Reason)
}

func TestAdmissionSectorRatioWaivedOnSmallBook(t *testing.T) {
	cfg := defaultAdmissionConfig()
	cfg.SectorConcentration = 0.5
	svc, repo := newAdmission(t, cfg)
	fill(t, repo, 1, "tech")

	// A second tech position would be 2/2 = 1.0 of the book, but a
	// two-position book is below the size where the ratio applies.
	decision, err := svc.Check(domain.MarketUS, "AAPL", "tech")
	require.NoError(t, err)
	assert.True(t, decision.Admit)
}

func TestAdmissionEmptySectorExemptFromSectorCaps(t *testing.T) {
	cfg := defaultAdmissionConfig()
	cfg.MaxPositionsSector = 1
	svc, repo := newAdmission(t, cfg)
	fill(t, repo, 5, "")

	decision, err := svc.Check(domain.MarketUS, "AAPL", "")
	require.NoError(t, err)
	assert.True(t, decision.Admit, "untagged candidates skip sector caps")
}

func TestAdmissionEmptySectorStillCountsForSlotLimit(t *testing.T) {
	cfg := defaultAdmissionConfig()
	cfg.MaxPositions = 5
	svc, repo := newAdmission(t, cfg)
	fill(t, repo, 5, "")

	decision, err := svc.Check(domain.MarketUS, "AAPL", "")
	require.NoError(t, err)
	assert.False(t, decision.Admit)
	assert.Equal(t, domain.SkipSlotLimit, decision.Reason)
}
