package sim

import (
	"context"
	"fmt"
	"net"
	"strconv"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"vitalstream/internal/telemetry"
)

// Table names written by GreptimeDBWriter.
const (
	ReadingTable = "vital_readings"
	SummaryTable = "health_summaries"
)

const defaultGreptimePort = 4001

// greptimeClient is the subset of the ingester client used by the writer.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter writes readings and summaries to GreptimeDB via the
// ingester client. Tables are created on first write.
type GreptimeDBWriter struct {
	client       greptimeClient
	readingTable string
	summaryTable string
}

// NewGreptimeDBWriter connects to endpoint ("host" or "host:port").
func NewGreptimeDBWriter(endpoint, database string) (*GreptimeDBWriter, error) {
	host, port, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("greptime client: %w", err)
	}
	return &GreptimeDBWriter{
		client:       client,
		readingTable: ReadingTable,
		summaryTable: SummaryTable,
	}, nil
}

func splitEndpoint(endpoint string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		// No port given.
		return endpoint, defaultGreptimePort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("greptime endpoint %q: invalid port: %w", endpoint, err)
	}
	return host, port, nil
}

func (w *GreptimeDBWriter) newReadingTable() (*table.Table, error) {
	tbl, err := table.New(w.readingTable)
	if err != nil {
		return nil, err
	}
	for _, c := range []struct {
		name string
		tag  bool
		typ  types.ColumnType
	}{
		{"subject_id", true, types.INT64},
		{"sensor_id", true, types.INT64},
		{"sensor_name", false, types.STRING},
		{"temperature", false, types.FLOAT64},
		{"heart_rate", false, types.INT64},
		{"battery", false, types.FLOAT64},
		{"alert_level", false, types.STRING},
	} {
		if c.tag {
			err = tbl.AddTagColumn(c.name, c.typ)
		} else {
			err = tbl.AddFieldColumn(c.name, c.typ)
		}
		if err != nil {
			return nil, err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return nil, err
	}
	return tbl, nil
}

// WriteReadings inserts reading rows in one request.
func (w *GreptimeDBWriter) WriteReadings(ctx context.Context, rows []telemetry.ReadingRow) error {
	if len(rows) == 0 {
		return nil
	}
	tbl, err := w.newReadingTable()
	if err != nil {
		return fmt.Errorf("build %s table: %w", w.readingTable, err)
	}
	for _, r := range rows {
		var temp, hr, battery any
		if r.Temperature != nil {
			temp = *r.Temperature
		}
		if r.HeartRate != nil {
			hr = int64(*r.HeartRate)
		}
		if r.Battery != nil {
			battery = *r.Battery
		}
		if err := tbl.AddRow(int64(r.SubjectID), int64(r.SensorID), r.SensorName,
			temp, hr, battery, r.AlertLevel, r.Timestamp); err != nil {
			return fmt.Errorf("add reading row: %w", err)
		}
	}
	if _, err := w.client.Write(ctx, tbl); err != nil {
		return fmt.Errorf("write %s: %w", w.readingTable, err)
	}
	return nil
}

// WriteSummary inserts one summary row.
func (w *GreptimeDBWriter) WriteSummary(ctx context.Context, row telemetry.SummaryRow) error {
	tbl, err := table.New(w.summaryTable)
	if err != nil {
		return fmt.Errorf("build %s table: %w", w.summaryTable, err)
	}
	if err := tbl.AddTagColumn("subject_id", types.INT64); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("summary_text", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("source", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return err
	}
	if err := tbl.AddRow(int64(row.SubjectID), row.Text, row.Source, row.Timestamp); err != nil {
		return fmt.Errorf("add summary row: %w", err)
	}
	if _, err := w.client.Write(ctx, tbl); err != nil {
		return fmt.Errorf("write %s: %w", w.summaryTable, err)
	}
	return nil
}
