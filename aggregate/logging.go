package aggregate

import "github.com/pingcap/log"

// UseGlobalLogger returns a Config whose Logger is pingcap/log's
// process-wide logger (log.L()) instead of the package default no-op
// logger — for a caller that already calls log.InitLogger once at process
// start and wants every AggregationDriver writing to that same sink,
// mirroring the way the teacher's call sites reach for log.L()/log.Warn
// rather than threading a *zap.Logger through every constructor.
func (c Config) UseGlobalLogger() Config {
	out := c
	out.Logger = log.L()
	return out
}
