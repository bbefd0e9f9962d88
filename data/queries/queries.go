package queries

import (
	"embed"
	"fmt"
)

//go:embed delete/*.sql insert/*.sql schema/*.sql select/*.sql update/*.sql
var Files embed.FS

// ^^^ the go:embed directive is used to embed the files in the queries package
// meaning on compile time it will convert the files to binary data and embed it in the queries package

type DeleteQueries struct {
	MetadataById             string
	TimeSeriesDataBySourceId string
}

type InsertQueries struct {
	Metadata string
}

type SchemaQueries struct {
	Tables string
}

type SelectQueries struct {
	MetaDataBySymbol            string
	MostRecentTimestampBySymbol string
	TimeSeriesData              string
}

type UpdateQueries struct {
	LastRefreshedDate string
}

type QueryHelperStruct struct {
	Delete DeleteQueries
	Insert InsertQueries
	Schema SchemaQueries
	Select SelectQueries
	Update UpdateQueries
}

var QueryHelper = QueryHelperStruct{
	Delete: DeleteQueries{
		MetadataById:             "delete/metadata_by_id.sql",
		TimeSeriesDataBySourceId: "delete/time_series_data_by_source_id.sql",
	},
	Insert: InsertQueries{
		Metadata: "insert/metadata.sql",
	},
	Schema: SchemaQueries{
		Tables: "schema/tables.sql",
	},
	Select: SelectQueries{
		MetaDataBySymbol:            "select/meta_data_by_symbol.sql",
		MostRecentTimestampBySymbol: "select/most_recent_timestamp_by_symbol.sql",
		TimeSeriesData:              "select/time_series_data.sql",
	},
	Update: UpdateQueries{
		LastRefreshedDate: "update/last_refreshed_date.sql",
	},
}

func Get(path string) string {
	content, err := Files.ReadFile(path)
	if err != nil {
		panic(fmt.Errorf("error reading query file: %w", err))
	}

	return string(content)
}
