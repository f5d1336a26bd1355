package obs

import (
	pyroscope "github.com/grafana/pyroscope-go"
	"go.uber.org/zap"
)

// StartProfiler pushes continuous profiles to a pyroscope server. An empty
// addr disables profiling and returns a no-op stop.
func StartProfiler(app, addr string, logger *zap.Logger) (func(), error) {
	if addr == "" {
		return func() {}, nil
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: app,
		ServerAddress:   addr,
		Logger:          profileLogger{logger.Named("pyroscope").Sugar()},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
	if err != nil {
		return nil, err
	}

	return func() { _ = profiler.Stop() }, nil
}

type profileLogger struct {
	s *zap.SugaredLogger
}

func (l profileLogger) Infof(format string, args ...interface{})  { l.s.Debugf(format, args...) }
func (l profileLogger) Debugf(format string, args ...interface{}) { l.s.Debugf(format, args...) }
func (l profileLogger) Errorf(format string, args ...interface{}) { l.s.Errorf(format, args...) }
