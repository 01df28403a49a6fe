package cluster

import (
	"context"
	"time"

	"github.com/Vastxiao/mongocheckd/docid"
	"github.com/Vastxiao/mongocheckd/internal/logger"
	"github.com/Vastxiao/mongocheckd/internal/retry"
	"github.com/Vastxiao/mongocheckd/internal/util"
	clone "github.com/huandu/go-clone/generic"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/samber/mo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"golang.org/x/time/rate"
)

const appName = "mongocheckd"

// DefaultPageTimeout is the server-side time limit on one page fetch.
const DefaultPageTimeout = 5 * time.Second

// MongoOptions configures a Mongo cluster connection.
type MongoOptions struct {
	// Name is "source" or "destination".
	Name string

	URI string

	// URIField names the setting that URI came from, for error messages.
	URIField string

	Retry          retry.Policy
	PageTimeout    time.Duration
	ReadPreference string
	MaxPoolSize    uint64

	// ReadsPerSecond throttles queries to this cluster. Zero means no limit.
	ReadsPerSecond float64
}

// Mongo is a Cluster backed by a live deployment.
type Mongo struct {
	name        string
	client      *mongo.Client
	retryer     *retry.Retryer
	limiter     *rate.Limiter
	pageTimeout time.Duration
	logger      *logger.Logger
}

var _ Cluster = &Mongo{}

// Connect opens a pool to the cluster and pings it. A bad connection string
// yields a *util.ConfigError; an unreachable cluster yields a
// *ConnectionError once retries are spent.
func Connect(ctx context.Context, l *logger.Logger, opts MongoOptions) (*Mongo, error) {
	field := lo.Ternary(opts.URIField == "", opts.Name+"URI", opts.URIField)

	clientOpts, direct, err := parseURI(field, opts.URI)
	if err != nil {
		return nil, err
	}

	if opts.ReadPreference != "" {
		mode, err := readpref.ModeFromString(opts.ReadPreference)
		if err != nil {
			return nil, util.NewConfigError("readPreference", "%v", err)
		}

		rp, err := readpref.New(mode)
		if err != nil {
			return nil, util.NewConfigError("readPreference", "%v", err)
		}

		clientOpts.SetReadPreference(rp)
	}

	if opts.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(opts.MaxPoolSize)
	}

	clientOpts.SetAppName(appName)

	pageTimeout := lo.Ternary(opts.PageTimeout > 0, opts.PageTimeout, DefaultPageTimeout)

	limit := rate.Inf
	if opts.ReadsPerSecond > 0 {
		limit = rate.Limit(opts.ReadsPerSecond)
	}

	sublogger := logger.NewSubLogger(l, "cluster", opts.Name)

	sublogger.Info().
		Strs("hosts", hostsOf(clientOpts)).
		Bool("directConnectionAdded", direct).
		Msg("Connecting.")

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, &ConnectionError{Cluster: opts.Name, Op: "connect", cause: err}
	}

	m := &Mongo{
		name:        opts.Name,
		client:      client,
		retryer:     retry.New(opts.Retry),
		limiter:     rate.NewLimiter(limit, max(1, int(opts.ReadsPerSecond))),
		pageTimeout: pageTimeout,
		logger:      sublogger,
	}

	err = m.run(ctx, "ping", func(ctx context.Context) error {
		return client.Ping(ctx, nil)
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return m, nil
}

func (m *Mongo) Name() string {
	return m.name
}

func (m *Mongo) coll(ns Namespace) *mongo.Collection {
	return m.client.Database(ns.DB).Collection(ns.Coll)
}

func (m *Mongo) LastID(ctx context.Context, ns Namespace) (docid.ID, error) {
	var id docid.ID

	err := m.run(ctx, "read last _id of "+ns.String(), func(ctx context.Context) error {
		raw, err := m.coll(ns).FindOne(
			ctx,
			bson.D{},
			options.FindOne().
				SetProjection(bson.D{{Key: "_id", Value: 1}}).
				SetSort(bson.D{{Key: "_id", Value: -1}}).
				SetMaxTime(m.pageTimeout),
		).Raw()

		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		if err != nil {
			return m.markTimeout("find last _id", err)
		}

		id, err = docid.FromRawValue(raw.Lookup("_id"))
		if err != nil {
			return &UnsupportedIDError{Namespace: ns, Doc: raw, cause: err}
		}

		return nil
	})

	return id, err
}

// ListIDs walks the `_id` index from a bound taken with `min`, so that the
// walk crosses BSON type brackets the same way a sort does. A `$gt` filter
// would stop at the end of after's type bracket.
func (m *Mongo) ListIDs(
	ctx context.Context,
	ns Namespace,
	after mo.Option[docid.ID],
	skip, limit int,
) ([]docid.ID, error) {
	if err := CheckPageBounds(skip, limit); err != nil {
		return nil, err
	}

	findOpts := options.Find().
		SetProjection(bson.D{{Key: "_id", Value: 1}}).
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetMaxTime(m.pageTimeout)

	bound, hasBound := after.Get()
	if hasBound {
		// `min` is inclusive, so fetch one extra and apply skip locally.
		findOpts.
			SetMin(bson.D{{Key: "_id", Value: bound.BSONValue()}}).
			SetHint(bson.D{{Key: "_id", Value: 1}}).
			SetLimit(int64(skip + limit + 1))
	} else {
		findOpts.SetLimit(int64(limit))
		if skip > 0 {
			findOpts.SetSkip(int64(skip))
		}
	}

	var ids []docid.ID

	err := m.run(ctx, "list _id values of "+ns.String(), func(ctx context.Context) error {
		ids = ids[:0]

		cursor, err := m.coll(ns).Find(ctx, bson.D{}, findOpts)
		if err != nil {
			return m.markTimeout("find _id page", err)
		}
		defer cursor.Close(ctx)

		for cursor.Next(ctx) {
			id, err := docid.FromRawValue(cursor.Current.Lookup("_id"))
			if err != nil {
				// The cursor reuses its buffer.
				return &UnsupportedIDError{Namespace: ns, Doc: clone.Clone(cursor.Current), cause: err}
			}

			ids = append(ids, id)
		}

		return m.markTimeout("iterate _id page", cursor.Err())
	})
	if err != nil {
		return nil, err
	}

	if hasBound {
		ids = PageAfter(ids, bound, skip, limit)
	}

	return ids, nil
}

func (m *Mongo) FindByID(ctx context.Context, ns Namespace, id docid.ID) (mo.Option[bson.Raw], error) {
	var doc mo.Option[bson.Raw]

	err := m.run(ctx, "find "+id.String()+" in "+ns.String(), func(ctx context.Context) error {
		raw, err := m.coll(ns).FindOne(
			ctx,
			bson.D{{Key: "_id", Value: id.BSONValue()}},
			options.FindOne().SetMaxTime(m.pageTimeout),
		).Raw()

		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			doc = mo.None[bson.Raw]()
			return nil
		case err != nil:
			return m.markTimeout("find by _id", err)
		}

		doc = mo.Some(raw)
		return nil
	})

	return doc, err
}

func (m *Mongo) ListDatabases(ctx context.Context) ([]string, error) {
	var names []string

	err := m.run(ctx, "list databases", func(ctx context.Context) error {
		var err error
		names, err = m.client.ListDatabaseNames(ctx, bson.D{})
		return err
	})
	if err != nil {
		return nil, err
	}

	return lo.Filter(names, func(n string, _ int) bool { return IsUserDB(n) }), nil
}

func (m *Mongo) ListCollections(ctx context.Context, db string) ([]string, error) {
	var names []string

	err := m.run(ctx, "list collections of "+db, func(ctx context.Context) error {
		var err error
		names, err = m.client.Database(db).ListCollectionNames(
			ctx,
			bson.D{},
			options.ListCollections().SetNameOnly(true),
		)
		return err
	})
	if err != nil {
		return nil, err
	}

	return lo.Filter(names, func(n string, _ int) bool { return IsUserCollection(n) }), nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return errors.Wrapf(m.client.Disconnect(ctx), "disconnecting from %s", m.name)
}

// run executes f under the rate limiter and the retry policy, then maps the
// outcome onto this package's error types.
func (m *Mongo) run(ctx context.Context, op string, f func(context.Context) error) error {
	err := m.retryer.WithDescription("%s (%s)", op, m.name).Run(
		ctx,
		m.logger,
		func(ctx context.Context, _ *retry.FuncInfo) error {
			if err := m.limiter.Wait(ctx); err != nil {
				return err
			}

			return f(ctx)
		},
	)

	return m.classify(ctx, op, err)
}

func (m *Mongo) markTimeout(op string, err error) error {
	if err != nil && util.IsMaxTimeMSExpiredError(err) {
		return &TimeoutError{Op: op, Limit: m.pageTimeout, cause: err}
	}

	return err
}

func (m *Mongo) classify(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}

	var cfgErr *util.ConfigError

	switch {
	case ctx.Err() != nil:
		return err
	case errors.Is(err, ErrNotFound), errors.As(err, &cfgErr):
		return err
	case errors.As(err, &retry.RetryLimitExceededErr{}):
		return &ConnectionError{Cluster: m.name, Op: op, cause: err}
	}

	return &OperationError{Cluster: m.name, Op: op, cause: err}
}
