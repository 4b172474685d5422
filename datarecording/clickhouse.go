package datarecording

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/cockroachdb/errors"
	"github.com/fatih/structs"
	"github.com/tebeka/atexit"
)

// ClickHouseOptions locates a ClickHouse server.
type ClickHouseOptions struct {
	Addr      string
	Database  string
	Username  string
	Password  string
	BatchSize int
}

// ClickHouseRecorder is a DataRecorder that bulk inserts into ClickHouse
// through the native protocol.
type ClickHouseRecorder struct {
	conn      clickhouse.Conn
	mu        sync.Mutex
	batchSize int

	tables     map[string]*clickHouseTable
	entryCount int
}

type clickHouseTable struct {
	structType reflect.Type
	rows       [][]any
}

// NewClickHouseRecorder connects to a ClickHouse server.
func NewClickHouseRecorder(opts ClickHouseOptions) (*ClickHouseRecorder, error) {
	if opts.BatchSize == 0 {
		opts.BatchSize = 100000
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:      time.Second * 30,
		MaxOpenConns:     5,
		MaxIdleConns:     5,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
	})
	if err != nil {
		return nil, errors.Wrap(err, "connecting to ClickHouse")
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, errors.Wrap(err, "pinging ClickHouse")
	}

	r := &ClickHouseRecorder{
		conn:      conn,
		batchSize: opts.BatchSize,
		tables:    make(map[string]*clickHouseTable),
	}

	atexit.Register(func() { r.Flush() })

	return r, nil
}

// CreateTable creates a MergeTree table ordered by its first column.
func (r *ClickHouseRecorder) CreateTable(tableName string, sampleEntry any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	createSQL, err := clickHouseSchema(tableName, sampleEntry)
	if err != nil {
		panic(err)
	}

	err = r.conn.Exec(context.Background(), createSQL)
	if err != nil {
		panic(errors.Wrapf(err, "failed to create table %s", tableName))
	}

	r.tables[tableName] = &clickHouseTable{
		structType: reflect.TypeOf(sampleEntry),
	}
}

// InsertData buffers one row.
func (r *ClickHouseRecorder) InsertData(tableName string, entry any) {
	r.mu.Lock()

	table, exists := r.tables[tableName]
	if !exists {
		r.mu.Unlock()
		panic(fmt.Sprintf("table %s does not exist", tableName))
	}

	table.rows = append(table.rows, clickHouseRow(entry))

	r.entryCount++
	if r.entryCount >= r.batchSize {
		r.mu.Unlock()
		r.Flush()

		return
	}

	r.mu.Unlock()
}

// ListTables returns all table names
func (r *ClickHouseRecorder) ListTables() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	tables := make([]string, 0, len(r.tables))
	for name := range r.tables {
		tables = append(tables, name)
	}

	return tables
}

// Flush sends one batch per table.
func (r *ClickHouseRecorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entryCount == 0 {
		return
	}

	ctx := context.Background()

	for tableName, table := range r.tables {
		if len(table.rows) == 0 {
			continue
		}

		batch, err := r.conn.PrepareBatch(ctx, "INSERT INTO "+tableName)
		if err != nil {
			panic(errors.Wrapf(err, "failed to prepare batch for %s", tableName))
		}

		for _, row := range table.rows {
			err = batch.Append(row...)
			if err != nil {
				panic(errors.Wrap(err, "failed to append to batch"))
			}
		}

		err = batch.Send()
		if err != nil {
			panic(errors.Wrap(err, "failed to send batch"))
		}

		table.rows = table.rows[:0]
	}

	r.entryCount = 0
}

// Close flushes and closes the connection.
func (r *ClickHouseRecorder) Close() error {
	r.Flush()
	return r.conn.Close()
}

func clickHouseType(kind reflect.Kind) (string, bool) {
	switch kind {
	case reflect.Bool:
		return "Bool", true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "Int64", true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32,
		reflect.Uint64:
		return "UInt64", true
	case reflect.Float32, reflect.Float64:
		return "Float64", true
	case reflect.String:
		return "String", true
	default:
		return "", false
	}
}

func clickHouseSchema(tableName string, sampleEntry any) (string, error) {
	err := checkStructFields(sampleEntry)
	if err != nil {
		return "", err
	}

	fields := structs.Fields(sampleEntry)
	if len(fields) == 0 {
		return "", errors.Newf("entry %T has no fields", sampleEntry)
	}

	columns := make([]string, 0, len(fields))

	for _, f := range fields {
		chType, _ := clickHouseType(reflect.TypeOf(f.Value()).Kind())
		columns = append(columns, f.Name()+" "+chType)
	}

	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n\t%s\n) ENGINE = MergeTree()\nORDER BY %s",
		tableName, strings.Join(columns, ",\n\t"), fields[0].Name()), nil
}

// clickHouseRow widens integer and float fields to the column types that
// clickHouseSchema declares.
func clickHouseRow(entry any) []any {
	values := structs.Values(entry)

	for i, v := range values {
		rv := reflect.ValueOf(v)

		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32,
			reflect.Int64:
			values[i] = rv.Int()
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32,
			reflect.Uint64:
			values[i] = rv.Uint()
		case reflect.Float32, reflect.Float64:
			values[i] = rv.Float()
		case reflect.String:
			values[i] = rv.String()
		}
	}

	return values
}
