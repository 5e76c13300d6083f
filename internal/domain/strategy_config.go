package domain

// StrategyStatus is the lifecycle state of a user's strategy instance.
type StrategyStatus string

const (
	StrategyCreated StrategyStatus = "CREATED"
	StrategyRunning StrategyStatus = "RUNNING"
	StrategyStopped StrategyStatus = "STOPPED"
	StrategyError   StrategyStatus = "ERROR"
)

// StrategyConfig is a user's configured instance of a pluggable strategy.
type StrategyConfig struct {
	ID               string
	UserID           string
	StrategyType     string
	Symbol           string
	Quantity         int
	Parameters       map[string]any
	StopLossPercent  float64
	TakeProfitPercent float64
	MaxTradesPerDay  int
	Status           StrategyStatus
}
