package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/certen/astral-location-services/pkg/compute"
	"github.com/certen/astral-location-services/pkg/config"
	"github.com/certen/astral-location-services/pkg/eas"
	"github.com/certen/astral-location-services/pkg/geometry"
	"github.com/certen/astral-location-services/pkg/httpapi"
	"github.com/certen/astral-location-services/pkg/plugin"
	"github.com/certen/astral-location-services/pkg/resolve"
	"github.com/certen/astral-location-services/pkg/signer"
	"github.com/certen/astral-location-services/pkg/verify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := log.New(log.Writer(), "[astral] ", log.LstdFlags)

	easChains := make(map[int64]eas.ChainConfig, len(cfg.Chains))
	easAddresses := make(map[int64]string, len(cfg.Chains))
	for id, chain := range cfg.Chains {
		easChains[id] = eas.ChainConfig{RPCURL: chain.RPCURL, EASContractAddress: chain.EASContractAddress}
		easAddresses[id] = chain.EASContractAddress
	}

	easClient, err := eas.NewClient(easChains, cfg.RPCTimeout)
	if err != nil {
		log.Fatalf("build EAS client: %v", err)
	}

	sgn, err := signer.New(cfg.SigningKeyHex, easAddresses, cfg.SigningDeadline)
	if err != nil {
		log.Fatalf("build signer: %v", err)
	}
	logger.Printf("attester address: %s", sgn.Address().Hex())

	resolver := resolve.New(easClient)
	backend := geometry.NewBackend()
	computePipeline := compute.New(resolver, backend, sgn, cfg)

	pluginRegistry := plugin.Global()
	verifyPipeline := verify.New(pluginRegistry)

	server := httpapi.New(cfg, computePipeline, verifyPipeline, sgn, cfg, pluginRegistry, logger)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server,
	}

	go func() {
		logger.Printf("astral-location-services listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http server shutdown error: %v", err)
	}

	logger.Printf("stopped")
}
