package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/haivivi/voiceshield/cmd/voiceshield/internal/config"
	"github.com/haivivi/voiceshield/pkg/ledger"
	"github.com/haivivi/voiceshield/pkg/oracle"
	"github.com/haivivi/voiceshield/pkg/oracle/remote"
	"github.com/haivivi/voiceshield/pkg/perturb"
	"github.com/haivivi/voiceshield/pkg/protect"
	"github.com/haivivi/voiceshield/pkg/storage"
	"github.com/haivivi/voiceshield/pkg/voiceprint"
)

// env is everything a command needs to run protection jobs. Close
// releases the oracle connection and the ledger.
type env struct {
	services *config.Services
	oracle   perturb.Oracle
	store    storage.Store
	ledger   ledger.Store
	service  *protect.Service
	closers  []func() error
}

// envOptions selects which parts of env a command needs.
type envOptions struct {
	oracle  bool
	storage bool
	ledger  bool
	extra   []protect.Option
}

func openEnv(ctx context.Context, o envOptions) (_ *env, err error) {
	cfg, err := GetConfig()
	if err != nil {
		return nil, err
	}
	services, err := cfg.LoadServices(contextName)
	if err != nil {
		return nil, err
	}
	if oracleFlag != "" {
		services.Oracle, err = oracleFromFlag(services.Oracle, oracleFlag)
		if err != nil {
			return nil, err
		}
	}

	e := &env{services: services}
	defer func() {
		if err != nil {
			e.Close()
		}
	}()

	// Run queries never embed and leave the oracle nil.
	if o.oracle {
		if e.oracle, err = e.openOracle(ctx); err != nil {
			return nil, err
		}
	}
	if o.storage {
		if e.store, err = openStorage(services.Storage); err != nil {
			return nil, err
		}
	}
	if o.ledger {
		if e.ledger, err = openLedger(services.Ledger); err != nil {
			return nil, err
		}
		e.closers = append(e.closers, e.ledger.Close)
	}

	opts := []protect.Option{protect.WithLogger(logger)}
	if e.store != nil {
		opts = append(opts, protect.WithStore(e.store))
	}
	if e.ledger != nil {
		opts = append(opts, protect.WithLedger(e.ledger))
	}
	if v := services.Verify; v.Threshold != 0 || v.HashBits != 0 || v.HashSeed != 0 {
		if v.Threshold != 0 {
			opts = append(opts, protect.WithThreshold(v.Threshold))
		}
		if v.HashBits != 0 || v.HashSeed != 0 {
			bits := v.HashBits
			if bits == 0 {
				bits = 16
			}
			opts = append(opts, protect.WithHash(bits, v.HashSeed))
		}
	}
	if services.Storage.Depth != 0 {
		opts = append(opts, protect.WithOutputDepth(services.Storage.Depth))
	}
	e.service = protect.New(e.oracle, append(opts, o.extra...)...)
	return e, nil
}

// Close releases resources in reverse order of acquisition.
func (e *env) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i]())
	}
	e.closers = nil
	return errors.Join(errs...)
}

// threshold returns the configured same-speaker threshold.
func (e *env) threshold() float64 {
	if th := e.services.Verify.Threshold; th != 0 {
		return th
	}
	return voiceprint.DefaultThreshold
}

func oracleFromFlag(base config.Oracle, flag string) (config.Oracle, error) {
	switch {
	case flag == config.OracleProjector:
		base.Kind = config.OracleProjector
		base.URL = ""
	case strings.HasPrefix(flag, "ws://"), strings.HasPrefix(flag, "wss://"):
		base.Kind = config.OracleRemote
		base.URL = flag
	default:
		return base, fmt.Errorf(`--oracle must be "projector" or a ws:// URL, got %q`, flag)
	}
	return base, base.Validate()
}

func (e *env) openOracle(ctx context.Context) (perturb.Oracle, error) {
	o := e.services.Oracle
	switch o.Kind {
	case config.OracleRemote:
		timeout, err := o.TimeoutDuration()
		if err != nil {
			return nil, err
		}
		c, err := remote.Dial(ctx, o.URL,
			remote.WithClientSampleRate(o.SampleRate),
			remote.WithTimeout(timeout),
		)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, c.Close)
		logger.Debug("connected to remote oracle", "url", o.URL)
		if o.SampleRate > 0 {
			return rateOracle{Oracle: c, rate: o.SampleRate}, nil
		}
		return c, nil
	default:
		return newProjector(o), nil
	}
}

func newProjector(o config.Oracle) *oracle.Projector {
	var opts []oracle.ProjectorOption
	if o.Seed != 0 {
		opts = append(opts, oracle.WithSeed(o.Seed))
	}
	if o.Dimension != 0 {
		opts = append(opts, oracle.WithDimension(o.Dimension))
	}
	if o.Frame != 0 && o.Hop != 0 {
		opts = append(opts, oracle.WithFrame(o.Frame, o.Hop))
	}
	if o.SampleRate != 0 {
		opts = append(opts, oracle.WithSampleRate(o.SampleRate))
	}
	return oracle.NewProjector(opts...)
}

// rateOracle declares the input rate of a remote oracle so inputs are
// resampled before they are sent.
type rateOracle struct {
	perturb.Oracle
	rate int
}

func (r rateOracle) SampleRate() int { return r.rate }

// Fork forks the wrapped oracle and keeps the declared rate.
func (r rateOracle) Fork(ctx context.Context) (perturb.Oracle, error) {
	f, ok := r.Oracle.(protect.Forker)
	if !ok {
		return r, nil
	}
	o, err := f.Fork(ctx)
	if err != nil {
		return nil, err
	}
	return rateCloser{rateOracle: rateOracle{Oracle: o, rate: r.rate}}, nil
}

// rateCloser is a forked rateOracle that owns its connection.
type rateCloser struct{ rateOracle }

func (r rateCloser) Close() error {
	if c, ok := r.Oracle.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func openStorage(s config.Storage) (storage.Store, error) {
	switch s.Kind {
	case config.StorageLocal:
		return storage.NewLocal(s.Dir)
	case config.StorageS3:
		return storage.NewS3FromConfig(storage.S3Config{
			Bucket:    s.Bucket,
			Prefix:    s.Prefix,
			Region:    s.Region,
			Endpoint:  s.Endpoint,
			PathStyle: s.PathStyle,
		})
	default:
		return nil, fmt.Errorf("storage: unknown kind %q", s.Kind)
	}
}

func openLedger(l config.Ledger) (ledger.Store, error) {
	switch l.Kind {
	case config.LedgerBadger:
		return ledger.NewBadger(ledger.BadgerOptions{Dir: l.Dir, Logger: logger})
	case config.LedgerMemory:
		return ledger.NewMemory(), nil
	default:
		return nil, fmt.Errorf("ledger: unknown kind %q", l.Kind)
	}
}
