package mocks

//go:generate mockgen -destination=./mock_ports.go -package=mocks market-analyzer/internal/model MarketData,Broker,TickCache,RateCache
