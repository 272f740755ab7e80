package stream

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	grpcbackoff "google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
)

// GeyserMemcmp is a server-side byte-equality predicate on account data.
type GeyserMemcmp struct {
	Offset uint64
	Bytes  []byte
}

// AccountFilter selects which geyser account updates reach a hook.
//
// Two modes exist: a full filter matches only when every configured
// criterion holds; a partial filter matches when any one does.
type AccountFilter struct {
	discriminator []byte
	memcmp        *GeyserMemcmp
	accounts      map[solana.PublicKey]struct{}
	isFull        bool
}

// FullAccountFilter matches when all configured criteria are satisfied.
// With no criteria it matches every account (a firehose).
func FullAccountFilter() AccountFilter {
	return AccountFilter{isFull: true}
}

// PartialAccountFilter matches when any configured criterion is satisfied.
func PartialAccountFilter() AccountFilter {
	return AccountFilter{}
}

// WithDiscriminator filters on the 8-byte account data prefix.
func (f AccountFilter) WithDiscriminator(disc []byte) AccountFilter {
	f.discriminator = disc
	return f
}

// WithMemcmp filters on a byte match at an offset.
func (f AccountFilter) WithMemcmp(m GeyserMemcmp) AccountFilter {
	f.memcmp = &m
	return f
}

// WithAccounts filters on an account pubkey set.
func (f AccountFilter) WithAccounts(pubkeys ...solana.PublicKey) AccountFilter {
	f.accounts = make(map[solana.PublicKey]struct{}, len(pubkeys))
	for _, pk := range pubkeys {
		f.accounts[pk] = struct{}{}
	}
	return f
}

// Matches reports whether the filter selects (pubkey, data).
func (f AccountFilter) Matches(pubkey solana.PublicKey, data []byte) bool {
	discMatch := func() bool {
		return len(data) >= len(f.discriminator) && bytes.Equal(data[:len(f.discriminator)], f.discriminator)
	}
	memcmpMatch := func() bool {
		end := f.memcmp.Offset + uint64(len(f.memcmp.Bytes))
		return uint64(len(data)) >= end && bytes.Equal(data[f.memcmp.Offset:end], f.memcmp.Bytes)
	}
	_, accountMatch := f.accounts[pubkey]

	if !f.isFull {
		return (f.discriminator != nil && discMatch()) ||
			(f.memcmp != nil && memcmpMatch()) ||
			accountMatch
	}
	if f.discriminator != nil && !discMatch() {
		return false
	}
	if f.memcmp != nil && !memcmpMatch() {
		return false
	}
	if f.accounts != nil && !accountMatch {
		return false
	}
	return true
}

// GeyserUpdate is one account change delivered over the geyser stream.
type GeyserUpdate struct {
	Pubkey   solana.PublicKey
	Owner    solana.PublicKey
	Lamports uint64
	Data     []byte
	Slot     uint64
}

// ChannelOptions configure the underlying gRPC channel. Zero values fall
// back to the transport library's defaults.
type ChannelOptions struct {
	ConnectTimeout     time.Duration
	RequestTimeout     time.Duration
	KeepaliveTime      time.Duration
	KeepaliveTimeout   time.Duration
	MaxRecvMsgSize     int
	InitialWindowSize  int32
	InitialConnWindow  int32
}

// GeyserOptions configure a GeyserSubscriber.
type GeyserOptions struct {
	Endpoint string
	// XToken authenticates against the geyser provider, sent as metadata.
	XToken string
	// PingInterval is the application-level ping cadence (default 30s).
	PingInterval time.Duration
	// MaxAttempts bounds consecutive re-subscribe attempts (minimum 5).
	MaxAttempts int
	Channel     ChannelOptions
	Logger      *zerolog.Logger
}

// GeyserSubscriber delivers program account updates and slot ticks over a
// bidirectional geyser gRPC stream. Hooks run synchronously on the stream
// goroutine and must not block.
type GeyserSubscriber struct {
	program solana.PublicKey
	opts    GeyserOptions
	log     zerolog.Logger

	// hook registry; the mutex is taken only during (un)subscribe
	hookMu    sync.Mutex
	hooks     map[string]accountHook
	onSlot    func(uint64)
	pingID    atomic.Int32
	memcmps   []GeyserMemcmp
	accounts  []solana.PublicKey

	runMu   sync.Mutex
	cancel  context.CancelFunc
	running bool
}

type accountHook struct {
	filter AccountFilter
	fn     func(GeyserUpdate)
}

// NewGeyserSubscriber creates a geyser subscriber for accounts owned by
// program. It does not connect until Subscribe is called.
func NewGeyserSubscriber(program solana.PublicKey, opts GeyserOptions) *GeyserSubscriber {
	base := opts.Logger
	if base == nil {
		l := DefaultLogger()
		base = &l
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.MaxAttempts < 5 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.Channel.MaxRecvMsgSize <= 0 {
		opts.Channel.MaxRecvMsgSize = 1 << 30
	}
	return &GeyserSubscriber{
		program: program,
		opts:    opts,
		log:     base.With().Str("component", "geyser").Logger(),
		hooks:   make(map[string]accountHook),
		onSlot:  func(uint64) {},
	}
}

// OnAccount registers a hook for account updates matching filter.
// Returns an id usable with RemoveHook. Must be called before Subscribe
// or between reconnects; hooks must not block.
func (g *GeyserSubscriber) OnAccount(filter AccountFilter, fn func(GeyserUpdate)) string {
	g.hookMu.Lock()
	defer g.hookMu.Unlock()
	id := uuid.NewString()
	g.hooks[id] = accountHook{filter: filter, fn: fn}
	return id
}

// RemoveHook unregisters a hook.
func (g *GeyserSubscriber) RemoveHook(id string) {
	g.hookMu.Lock()
	defer g.hookMu.Unlock()
	delete(g.hooks, id)
}

// OnSlot registers the slot tick callback. It must not block.
func (g *GeyserSubscriber) OnSlot(fn func(uint64)) {
	g.hookMu.Lock()
	defer g.hookMu.Unlock()
	g.onSlot = fn
}

// WithMemcmp adds a server-side memcmp constraint to the subscribe request.
func (g *GeyserSubscriber) WithMemcmp(m GeyserMemcmp) {
	g.memcmps = append(g.memcmps, m)
}

// WithAccounts restricts the subscribe request to the given pubkeys.
func (g *GeyserSubscriber) WithAccounts(pubkeys ...solana.PublicKey) {
	g.accounts = append(g.accounts, pubkeys...)
}

// Subscribe connects and starts the stream task.
func (g *GeyserSubscriber) Subscribe(ctx context.Context, commitment pb.CommitmentLevel) (Unsubscribe, error) {
	g.runMu.Lock()
	defer g.runMu.Unlock()
	if g.running {
		return nil, errors.New("already subscribed")
	}

	conn, err := g.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("geyser connect: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.running = true

	go func() {
		defer conn.Close()
		g.streamLoop(ctx, pb.NewGeyserClient(conn), g.subscribeRequest(commitment))
	}()

	return func() {
		g.runMu.Lock()
		defer g.runMu.Unlock()
		if g.running {
			g.cancel()
			g.running = false
		}
	}, nil
}

func (g *GeyserSubscriber) dial(ctx context.Context) (*grpc.ClientConn, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	creds := credentials.NewTLS(tlsConfig)
	if path := os.Getenv("GRPC_CA_CERT"); path != "" {
		var err error
		creds, err = credentials.NewClientTLSFromFile(path, "")
		if err != nil {
			return nil, fmt.Errorf("GRPC_CA_CERT: %w", err)
		}
	}

	kacp := keepalive.ClientParameters{PermitWithoutStream: true}
	if g.opts.Channel.KeepaliveTime > 0 {
		kacp.Time = g.opts.Channel.KeepaliveTime
	}
	if g.opts.Channel.KeepaliveTimeout > 0 {
		kacp.Timeout = g.opts.Channel.KeepaliveTimeout
	}

	connectParams := grpc.ConnectParams{Backoff: grpcbackoff.DefaultConfig}
	if g.opts.Channel.ConnectTimeout > 0 {
		connectParams.MinConnectTimeout = g.opts.Channel.ConnectTimeout
	}

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithKeepaliveParams(kacp),
		grpc.WithConnectParams(connectParams),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(g.opts.Channel.MaxRecvMsgSize)),
	}
	if g.opts.Channel.InitialWindowSize > 0 {
		opts = append(opts, grpc.WithInitialWindowSize(g.opts.Channel.InitialWindowSize))
	}
	if g.opts.Channel.InitialConnWindow > 0 {
		opts = append(opts, grpc.WithInitialConnWindowSize(g.opts.Channel.InitialConnWindow))
	}

	return grpc.NewClient(g.opts.Endpoint, opts...)
}

func (g *GeyserSubscriber) subscribeRequest(commitment pb.CommitmentLevel) *pb.SubscribeRequest {
	filters := make([]*pb.SubscribeRequestFilterAccountsFilter, 0, len(g.memcmps))
	for _, m := range g.memcmps {
		filters = append(filters, &pb.SubscribeRequestFilterAccountsFilter{
			Filter: &pb.SubscribeRequestFilterAccountsFilter_Memcmp{
				Memcmp: &pb.SubscribeRequestFilterAccountsFilterMemcmp{
					Offset: m.Offset,
					Data:   &pb.SubscribeRequestFilterAccountsFilterMemcmp_Bytes{Bytes: m.Bytes},
				},
			},
		})
	}

	accounts := make([]string, 0, len(g.accounts))
	for _, pk := range g.accounts {
		accounts = append(accounts, pk.String())
	}

	filterByCommitment := true
	interslotUpdates := false

	return &pb.SubscribeRequest{
		Accounts: map[string]*pb.SubscribeRequestFilterAccounts{
			"client": {
				Account: accounts,
				Owner:   []string{g.program.String()},
				Filters: filters,
			},
		},
		Slots: map[string]*pb.SubscribeRequestFilterSlots{
			"client": {
				FilterByCommitment: &filterByCommitment,
				InterslotUpdates:   &interslotUpdates,
			},
		},
		Commitment: &commitment,
	}
}

func (g *GeyserSubscriber) streamLoop(ctx context.Context, client pb.GeyserClient, request *pb.SubscribeRequest) {
	attempts := 0
	var latestSlot uint64
	for {
		if ctx.Err() != nil {
			return
		}
		gotUpdate, err := g.runStream(ctx, client, request, &latestSlot)
		if ctx.Err() != nil {
			return
		}
		if gotUpdate {
			attempts = 0
		}
		attempts++
		if attempts >= g.opts.MaxAttempts {
			g.log.Warn().Err(err).Int("attempts", attempts).Msg("max reconnection attempts reached, disconnecting")
			return
		}
		g.log.Warn().Err(err).Msg("geyser stream failed, re-subscribing")
		select {
		case <-time.After(defaultBaseDelay):
		case <-ctx.Done():
			return
		}
	}
}

func (g *GeyserSubscriber) runStream(ctx context.Context, client pb.GeyserClient, request *pb.SubscribeRequest, latestSlot *uint64) (bool, error) {
	streamCtx := ctx
	if g.opts.XToken != "" {
		streamCtx = metadata.AppendToOutgoingContext(ctx, "x-token", g.opts.XToken)
	}
	stream, err := client.Subscribe(streamCtx)
	if err != nil {
		return false, err
	}
	if err := stream.Send(request); err != nil {
		return false, err
	}
	g.log.Info().Str("endpoint", g.opts.Endpoint).Msg("geyser stream subscribed")

	// application-level ping keeps intermediaries alive
	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		ticker := time.NewTicker(g.opts.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				g.sendPing(stream)
			case <-pingDone:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	gotUpdate := false
	for {
		msg, err := stream.Recv()
		if err != nil {
			return gotUpdate, err
		}
		gotUpdate = true

		switch u := msg.GetUpdateOneof().(type) {
		case *pb.SubscribeUpdate_Account:
			info := u.Account.GetAccount()
			if info == nil {
				g.log.Warn().Msg("empty account update")
				continue
			}
			pubkey := solana.PublicKeyFromBytes(info.Pubkey)
			update := GeyserUpdate{
				Pubkey:   pubkey,
				Owner:    g.program,
				Lamports: info.Lamports,
				Data:     info.Data,
				Slot:     u.Account.Slot,
			}
			for _, hook := range g.snapshotHooks() {
				if hook.filter.Matches(pubkey, info.Data) {
					hook.fn(update)
				}
			}
		case *pb.SubscribeUpdate_Slot:
			if u.Slot.Slot > *latestSlot {
				*latestSlot = u.Slot.Slot
				g.onSlot(*latestSlot)
			}
		case *pb.SubscribeUpdate_Ping:
			g.sendPing(stream)
		case *pb.SubscribeUpdate_Pong:
			g.log.Debug().Int32("id", u.Pong.Id).Msg("pong")
		default:
			g.log.Debug().Msg("unhandled geyser update")
		}
	}
}

// snapshotHooks copies the registry so fan-out never holds the mutex.
func (g *GeyserSubscriber) snapshotHooks() []accountHook {
	g.hookMu.Lock()
	defer g.hookMu.Unlock()
	hooks := make([]accountHook, 0, len(g.hooks))
	for _, h := range g.hooks {
		hooks = append(hooks, h)
	}
	return hooks
}

// sendPing replies with a monotonically increasing ping id.
func (g *GeyserSubscriber) sendPing(stream pb.Geyser_SubscribeClient) {
	id := g.pingID.Add(1)
	if err := stream.Send(&pb.SubscribeRequest{
		Ping: &pb.SubscribeRequestPing{Id: id},
	}); err != nil {
		g.log.Warn().Err(err).Msg("ping failed")
	}
}
