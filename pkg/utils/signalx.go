package utils

import (
	"os"
	"os/signal"
	"syscall"
)

// WatchSignal blocks until SIGTERM or SIGINT.
func WatchSignal() {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGTERM, syscall.SIGINT)
	<-signalCh
}
