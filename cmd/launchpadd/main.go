package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"launchpad/config"
	"launchpad/core"
	"launchpad/crypto"
	"launchpad/native/launchpad"
	"launchpad/native/sale"
	"launchpad/observability/logging"
	"launchpad/rpc"
	"launchpad/storage"
)

const ownerPassEnv = "LAUNCHPAD_OWNER_PASS"

// factoryAccount is the well-known module account accumulating creation fees
// and anchoring deterministic sale address derivation.
func factoryAccount() [20]byte {
	hash := ethcrypto.Keccak256([]byte("launchpad/factory"))
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("LAUNCHPAD_ENV"))
	logger := logging.Setup("launchpadd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	ownerKey, err := crypto.LoadFromKeystore(cfg.OwnerKeystorePath, os.Getenv(ownerPassEnv))
	if err != nil {
		panic(fmt.Sprintf("Failed to load owner key: %v", err))
	}
	ownerAddr := ownerKey.PubKey().Address()
	var owner [20]byte
	copy(owner[:], ownerAddr.Bytes())

	node, err := core.NewNode(db)
	if err != nil {
		panic(fmt.Sprintf("Failed to create node: %v", err))
	}
	node.SetFactoryAddress(factoryAccount())

	creationFee, err := cfg.ParsedCreationFee()
	if err != nil {
		panic(fmt.Sprintf("Failed to parse creation fee: %v", err))
	}
	if err := node.InitializeLaunchpad(owner, creationFee, cfg.FeePercent); err != nil {
		panic(fmt.Sprintf("Failed to initialise launchpad params: %v", err))
	}
	if err := node.SetPaused(sale.ModuleName, cfg.Pauses.Sale); err != nil {
		panic(fmt.Sprintf("Failed to apply sale pause switch: %v", err))
	}
	if err := node.SetPaused(launchpad.ModuleName, cfg.Pauses.Launchpad); err != nil {
		panic(fmt.Sprintf("Failed to apply launchpad pause switch: %v", err))
	}

	logger.Info("launchpad node initialised",
		slog.String("owner", ownerAddr.String()),
		slog.String("network", cfg.NetworkName),
		slog.String("fee", creationFee.String()),
		slog.Int("feePercent", int(cfg.FeePercent)),
	)

	rpcServer := rpc.NewServer(node, logger)
	if err := rpcServer.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server terminated", slog.Any("error", err))
		os.Exit(1)
	}
}
