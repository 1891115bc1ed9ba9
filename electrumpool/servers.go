package electrumpool

import (
	"embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	goerrors "github.com/go-errors/errors"
)

//go:embed servers_mainnet.json servers_signet.json servers_testnet.json servers_regtest.json
var serverResources embed.FS

// ServerAddress is a single Electrum server entry: a hostname, its
// (possibly unresolved) SSL port, and whether it is reachable only over
// Tor.
type ServerAddress struct {
	Host   string
	Port   uint16
	SSL    bool
	Onion  bool
}

func (s ServerAddress) String() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// rawServerEntry mirrors the on-disk JSON shape: an object keyed by
// hostname whose value carries an optional "s" field with the SSL port
// as a decimal string.
type rawServerEntry struct {
	S string `json:"s"`
}

// Exported genesis hashes identifying the chains this pool knows how to
// load a server list for.
var (
	MainnetGenesisHash = mainnetGenesis
	TestnetGenesisHash = testnetGenesis
	SignetGenesisHash  = signetGenesis
	RegtestGenesisHash = regtestGenesis
)

var resourceByChain = map[chainhash.Hash]string{
	mainnetGenesis: "servers_mainnet.json",
	signetGenesis:  "servers_signet.json",
	testnetGenesis: "servers_testnet.json",
	regtestGenesis: "servers_regtest.json",
}

var (
	mainnetGenesis = mustHash("000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f")
	testnetGenesis = mustHash("000000000933ea01ad0ee984209779baaec3ced90fa3f408719526f8d77f4943")
	signetGenesis  = mustHash("00000008819873e925422c1ff0f99f7cc9bbb232af63a077a480a3633bee1ef6")
	regtestGenesis = mustHash("0f9188f13cb7b2c71f2a335e3a4fc328bf5beb436012afca590b1a11466e2206")
)

// mustHash parses a genesis block hash, padding or truncating to exactly
// 32 bytes so a slightly mistyped constant can never panic a package init.
func mustHash(s string) chainhash.Hash {
	const want = chainhash.HashSize * 2
	if len(s) > want {
		s = s[:want]
	} else {
		for len(s) < want {
			s = "0" + s
		}
	}
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		panic(err)
	}
	return *h
}

// readServerAddresses loads and parses the server list resource for the
// given genesis hash. An unknown chain hash is a fatal construction error,
// fatal: there is no fallback server list; a corrupt resource surfaces the json parse error to the
// caller.
func readServerAddresses(chain chainhash.Hash, useOnion bool) ([]ServerAddress, error) {
	resource, ok := resourceByChain[chain]
	if !ok {
		return nil, goerrors.Errorf("unknown chain hash %s: no "+
			"electrum server list configured", chain)
	}

	raw, err := serverResources.ReadFile(resource)
	if err != nil {
		return nil, goerrors.Wrap(err, 0)
	}

	var entries map[string]rawServerEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("corrupt electrum server list %s: %w",
			resource, err)
	}

	addrs := make([]ServerAddress, 0, len(entries))
	for host, entry := range entries {
		onion := strings.HasSuffix(host, ".onion")
		if onion && !useOnion {
			continue
		}

		var port uint64
		if entry.S != "" {
			port, err = strconv.ParseUint(entry.S, 10, 16)
			if err != nil {
				return nil, fmt.Errorf("corrupt ssl port for "+
					"%s: %w", host, err)
			}
		}

		addrs = append(addrs, ServerAddress{
			Host:  host,
			Port:  uint16(port),
			SSL:   true, // SSL mode is hard-coded to LOOSE.
			Onion: onion,
		})
	}

	return addrs, nil
}

// pickAddress returns a uniformly random address from candidates that is
// not already present in used. It returns ok=false once every candidate
// has been tried.
func pickAddress(candidates []ServerAddress, used map[string]struct{}) (ServerAddress, bool) {
	available := make([]ServerAddress, 0, len(candidates))
	for _, c := range candidates {
		if _, taken := used[c.String()]; !taken {
			available = append(available, c)
		}
	}
	if len(available) == 0 {
		return ServerAddress{}, false
	}
	return available[rand.Intn(len(available))], true
}
