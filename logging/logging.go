package logging

import "go.uber.org/zap"

// GetSugaredLogger builds the process-wide sugared logger.
func GetSugaredLogger() *zap.SugaredLogger {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic("cannot initialize zap: " + err.Error())
	}

	return logger.Sugar()
}
