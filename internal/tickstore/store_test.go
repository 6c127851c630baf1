package tickstore

import (
	"context"
	"testing"
	"time"

	"market-analyzer/internal/mocks"
	"market-analyzer/internal/model"
	redisstore "market-analyzer/internal/store/redis"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var day = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func at(ms int) time.Time {
	return day.Add(10*time.Hour + time.Duration(ms)*time.Millisecond)
}

func trade(ms int, price float64) model.Tick {
	return model.Tick{Time: at(ms), Last: price, Volume: 1, Flags: model.FlagLast | model.FlagVolume}
}

type recorder struct {
	statuses []model.Status
}

func (r *recorder) CheckStatus(_ model.ResponseType, st model.Status, _ string) bool {
	if st != model.StatusOK {
		r.statuses = append(r.statuses, st)
		return false
	}
	return true
}

func batches(bs ...model.TickBatch) <-chan model.TickBatch {
	ch := make(chan model.TickBatch, len(bs))
	for _, b := range bs {
		ch <- b
	}
	close(ch)
	return ch
}

func TestStore_AppendPartitionsBySecond(t *testing.T) {
	s := New(Config{Symbol: "EURUSD"}, nil, nil, nil, nil)
	assert.True(t, s.Append(trade(0, 1)))
	assert.True(t, s.Append(trade(400, 2)))
	assert.False(t, s.Append(trade(400, 2)), "duplicate must be rejected")
	assert.False(t, s.Append(trade(100, 3)), "regression must be rejected")
	assert.True(t, s.Append(trade(1200, 4)))
	assert.True(t, s.Append(trade(3500, 5)))

	assert.Equal(t, 4, s.Len())
	assert.Equal(t, 3, s.Partitions())
	last, ok := s.LastTime()
	require.True(t, ok)
	assert.Equal(t, at(3500), last)
}

func TestStore_Window(t *testing.T) {
	s := New(Config{Symbol: "EURUSD"}, nil, nil, nil, nil)
	for i := 0; i < 100; i++ {
		s.Append(trade(i*250, float64(i)))
	}

	w := s.Window(at(2000), at(4000))
	require.Len(t, w, 9)
	assert.Equal(t, 8.0, w[0].Last)
	assert.Equal(t, 16.0, w[8].Last)

	w = s.Window(at(2100), at(2600))
	require.Len(t, w, 2)
	assert.Equal(t, 9.0, w[0].Last)

	assert.Empty(t, s.Window(at(4000), at(2000)))
	assert.Empty(t, s.Window(at(100000), at(200000)))
}

func TestStore_LatestQuoteAcrossSeparateLegs(t *testing.T) {
	s := New(Config{Symbol: "EURUSD"}, nil, nil, nil, nil)
	s.Append(model.Tick{Time: at(1000), Last: 50, Flags: model.FlagLast})
	s.Append(model.Tick{Time: at(2000), Bid: 49, Flags: model.FlagBid})
	s.Append(model.Tick{Time: at(3000), Ask: 51, Flags: model.FlagAsk})

	q, ok := s.LatestQuote(at(3000))
	require.True(t, ok)
	assert.Equal(t, 49.0, q.Bid.Unwrap())
	assert.Equal(t, 51.0, q.Ask.Unwrap())
	assert.Equal(t, 50.0, q.Last.Unwrap())
	assert.False(t, q.Auction())
	assert.Equal(t, at(3000), q.Time)
}

func TestStore_LatestQuoteTakesNewestLegOnly(t *testing.T) {
	s := New(Config{Symbol: "EURUSD"}, nil, nil, nil, nil)
	s.Append(model.Tick{Time: at(0), Bid: 10, Ask: 11, Last: 10.5, Flags: model.FlagBid | model.FlagAsk | model.FlagLast})
	s.Append(model.Tick{Time: at(100), Bid: 12, Flags: model.FlagBid})
	s.Append(model.Tick{Time: at(5000), Bid: 99, Ask: 100, Last: 99, Flags: model.FlagBid | model.FlagAsk | model.FlagLast})

	q, ok := s.LatestQuote(at(200))
	require.True(t, ok)
	assert.Equal(t, 12.0, q.Bid.Unwrap())
	assert.Equal(t, 11.0, q.Ask.Unwrap())
	assert.Equal(t, 10.5, q.Last.Unwrap())
	assert.True(t, q.Auction(), "bid 12 >= ask 11 is a crossed quote")

	_, ok = s.LatestQuote(at(-1000))
	assert.False(t, ok)
}

func TestStore_LatestQuoteIncomplete(t *testing.T) {
	s := New(Config{Symbol: "EURUSD"}, nil, nil, nil, nil)
	s.Append(model.Tick{Time: at(0), Bid: 10, Flags: model.FlagBid})
	q, ok := s.LatestQuote(at(10))
	require.True(t, ok)
	assert.True(t, q.Bid.IsSome())
	assert.True(t, q.Ask.IsNone())
	assert.False(t, q.Complete())
}

func TestStore_Resample(t *testing.T) {
	s := New(Config{Symbol: "EURUSD"}, nil, nil, nil, nil)
	for i := 0; i < 120; i++ {
		s.Append(trade(i*1000, float64(100+i)))
	}
	rates := s.Resample(at(0), at(119000), time.Minute)
	require.Len(t, rates, 2)
	assert.Equal(t, 100.0, rates[0].Open)
	assert.Equal(t, 159.0, rates[0].Close)
	assert.Equal(t, int64(60), rates[0].TickVolume)
}

func TestStore_LoadHydratesCacheThenFeed(t *testing.T) {
	ctrl := gomock.NewController(t)
	feed := mocks.NewMockMarketData(ctrl)
	cache := mocks.NewMockTickCache(ctrl)

	cached := []model.Tick{trade(0, 1), trade(1000, 2)}
	cache.EXPECT().ReadTicks(gomock.Any(), "EURUSD", day).Return(cached, nil)
	feed.EXPECT().
		StreamTicks(gomock.Any(), "EURUSD", at(1000), day.AddDate(0, 0, 1), 100).
		DoAndReturn(func(_ context.Context, _ string, _, _ time.Time, _ int) (<-chan model.TickBatch, error) {
			return batches(
				model.TickBatch{Ticks: []model.Tick{trade(1000, 2), trade(2000, 3)}},
				model.TickBatch{Ticks: []model.Tick{trade(3000, 4)}},
			), nil
		})
	cache.EXPECT().AppendTicks(gomock.Any(), "EURUSD", day, []model.Tick{trade(2000, 3)}).Return(nil)
	cache.EXPECT().AppendTicks(gomock.Any(), "EURUSD", day, []model.Tick{trade(3000, 4)}).Return(nil)

	s := New(Config{ChunkSize: 100}, feed, cache, &recorder{}, nil)
	ok, err := s.Load(context.Background(), "EURUSD", at(0))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 4, s.Len())
	assert.Equal(t, "EURUSD", s.Symbol())
}

func TestStore_LoadStopsOnStatus(t *testing.T) {
	ctrl := gomock.NewController(t)
	feed := mocks.NewMockMarketData(ctrl)
	rec := &recorder{}

	feed.EXPECT().StreamTicks(gomock.Any(), "EURUSD", day, day.AddDate(0, 0, 1), 5000).
		Return(batches(
			model.TickBatch{Ticks: []model.Tick{trade(0, 1)}},
			model.TickBatch{Status: model.StatusTimeout},
			model.TickBatch{Ticks: []model.Tick{trade(1000, 2)}},
		), nil)

	s := New(Config{Symbol: "EURUSD"}, feed, nil, rec, nil)
	ok, err := s.Load(context.Background(), "", day)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []model.Status{model.StatusTimeout}, rec.statuses)
	assert.Equal(t, 1, s.Len())
}

func TestStore_LoadSurvivesCacheOutage(t *testing.T) {
	ctrl := gomock.NewController(t)
	feed := mocks.NewMockMarketData(ctrl)
	feed.EXPECT().StreamTicks(gomock.Any(), "EURUSD", gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, _, _ time.Time, _ int) (<-chan model.TickBatch, error) {
			return batches(model.TickBatch{Ticks: []model.Tick{trade(0, 1), trade(1000, 2)}}), nil
		}).Times(3)

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	cb := redisstore.NewCircuitBreaker(1, time.Hour)
	cache := redisstore.NewCache(client, cb, time.Hour, nil)

	s := New(Config{Symbol: "EURUSD"}, feed, cache, &recorder{}, nil)
	ok, err := s.Load(context.Background(), "EURUSD", day)
	require.NoError(t, err)
	require.True(t, ok)
	cached, err := cache.ReadTicks(context.Background(), "EURUSD", day)
	require.NoError(t, err)
	assert.Len(t, cached, 2)

	mr.Close()

	for attempt := 0; attempt < 2; attempt++ {
		rec := &recorder{}
		s := New(Config{Symbol: "EURUSD"}, feed, cache, rec, nil)
		ok, err := s.Load(context.Background(), "EURUSD", day)
		require.NoError(t, err, "attempt %d", attempt)
		assert.True(t, ok, "attempt %d", attempt)
		assert.Equal(t, 2, s.Len(), "attempt %d backfills from the feed", attempt)
		assert.NotEmpty(t, rec.statuses, "attempt %d records the cache failure", attempt)
		assert.Equal(t, model.StatusError, rec.statuses[0])
	}
	assert.Equal(t, redisstore.StateOpen, cb.CurrentState())
}

func TestRates_RefreshIgnoresCacheReadFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	feed := mocks.NewMockMarketData(ctrl)
	cache := mocks.NewMockRateCache(ctrl)

	now := at(0).Add(10 * time.Minute)
	cache.EXPECT().RangeRates(gomock.Any(), "EURUSD", day, time.Minute, gomock.Any(), now).
		Return(nil, redisstore.ErrCircuitOpen)
	rateCh := make(chan model.RateBatch, 1)
	rateCh <- model.RateBatch{Rates: []model.Rate{{Time: now.Add(-time.Minute), Close: 3}}}
	close(rateCh)
	feed.EXPECT().StreamRates(gomock.Any(), "EURUSD", now.Add(-5*time.Minute), now, time.Minute, 5000).
		Return((<-chan model.RateBatch)(rateCh), nil)
	cache.EXPECT().AddRates(gomock.Any(), "EURUSD", day, time.Minute, gomock.Len(1)).Return(redisstore.ErrCircuitOpen)

	rec := &recorder{}
	p := NewRates(RatesConfig{Symbol: "EURUSD", Timeframe: time.Minute, Window: 5 * time.Minute}, feed, cache, rec, nil)
	rates, ok, err := p.Refresh(context.Background(), now)
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, rates, 1)
	assert.Equal(t, []model.Status{model.StatusError}, rec.statuses)
}

func TestStore_LoadWithoutFeed(t *testing.T) {
	s := New(Config{Symbol: "EURUSD"}, nil, nil, nil, nil)
	_, err := s.Load(context.Background(), "EURUSD", day)
	assert.ErrorIs(t, err, ErrNoFeed)
}

func TestStore_PullAppendsNewerTicks(t *testing.T) {
	ctrl := gomock.NewController(t)
	feed := mocks.NewMockMarketData(ctrl)
	cache := mocks.NewMockTickCache(ctrl)

	s := New(Config{Symbol: "EURUSD", ChunkSize: 10}, feed, cache, &recorder{}, nil)
	s.Append(trade(0, 1))

	feed.EXPECT().StreamTicks(gomock.Any(), "EURUSD", at(0), at(5000), 10).
		Return(batches(model.TickBatch{Ticks: []model.Tick{trade(0, 1), trade(4000, 2)}}), nil)
	cache.EXPECT().AppendTicks(gomock.Any(), "EURUSD", day, []model.Tick{trade(4000, 2)}).Return(nil)

	n, ok, err := s.Pull(context.Background(), at(5000))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, s.Len())

	// nothing newer to ask for
	n, ok, err = s.Pull(context.Background(), at(4000))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, n)
}

func TestRates_RefreshMergesCacheAndFeed(t *testing.T) {
	ctrl := gomock.NewController(t)
	feed := mocks.NewMockMarketData(ctrl)
	cache := mocks.NewMockRateCache(ctrl)

	now := at(0).Add(10 * time.Minute)
	r1 := model.Rate{Time: now.Add(-3 * time.Minute), Close: 1}
	r2 := model.Rate{Time: now.Add(-2 * time.Minute), Close: 2}
	r3 := model.Rate{Time: now.Add(-time.Minute), Close: 3}

	cache.EXPECT().RangeRates(gomock.Any(), "EURUSD", day, time.Minute, now.Add(-5*time.Minute), now).
		Return([]model.Rate{r1, r2}, nil)
	rateCh := make(chan model.RateBatch, 1)
	rateCh <- model.RateBatch{Rates: []model.Rate{{Time: r2.Time, Close: 2.5}, r3}}
	close(rateCh)
	feed.EXPECT().StreamRates(gomock.Any(), "EURUSD", r2.Time, now, time.Minute, 5000).
		Return((<-chan model.RateBatch)(rateCh), nil)
	cache.EXPECT().AddRates(gomock.Any(), "EURUSD", day, time.Minute, gomock.Len(2)).Return(nil)

	p := NewRates(RatesConfig{Symbol: "EURUSD", Timeframe: time.Minute, Window: 5 * time.Minute}, feed, cache, &recorder{}, nil)
	rates, ok, err := p.Refresh(context.Background(), now)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, rates, 3)
	assert.Equal(t, 2.5, rates[1].Close)
	assert.Equal(t, 3.0, rates[2].Close)
}
