// mount-emulator runs the in-process EQ500X protocol emulator behind a TCP
// listener, so the main daemon (or a raw serial client) can be exercised
// without hardware. Point a mount's hostname/port at it.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chrissnell/remotescope/internal/log"
	"github.com/chrissnell/remotescope/internal/mount"
	"github.com/chrissnell/remotescope/pkg/mechanical"
)

func main() {
	listenAddr := flag.String("listen", ":7001", "TCP listen address")
	pierSide := flag.String("pier", "east", "pier side of the emulated tube: east or west")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	flag.Parse()

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	var side mechanical.PierSide
	switch *pierSide {
	case "east":
		side = mechanical.PierEast
	case "west":
		side = mechanical.PierWest
	default:
		log.Fatalf("invalid pier side %q, must be east or west", *pierSide)
	}

	ln, err := net.Listen("tcp", *listenAddr)
	if err != nil {
		log.Fatalf("could not listen on %s: %v", *listenAddr, err)
	}
	log.Infof("mount emulator listening on %s, tube %s of the pier", *listenAddr, side)

	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("shutdown signal received")
		cancel()
		ln.Close()
	}()

	e := mount.NewEmulator(side, time.Now, log.GetSugaredLogger())

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			log.Errorf("accept error: %v", err)
			continue
		}
		log.Infof("client connected from %s", conn.RemoteAddr())
		go e.Serve(conn)
	}
}
