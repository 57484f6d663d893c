// Package importer loads supplier catalog CSV files into the products table.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"pawmarket/internal/domain"
	"pawmarket/internal/logging"
)

type ProductWriter interface {
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
}

// CSVImporter reads catalog rows and upserts one product per row.
//
// Recognized columns: id, supplierId, sku, name, priceCents, salePriceCents,
// onSale, quantity, currency. id and supplierId accept "collection/id" paths.
// A supplier given on the command line fills rows without one.
type CSVImporter struct {
	reader      *csv.Reader
	productRepo ProductWriter
	supplierID  string
	logger      *zap.Logger
}

func NewCSVImporter(r io.Reader, repo ProductWriter, supplierID string, logger *zap.Logger) *CSVImporter {
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1 // rows may have trailing commas
	return &CSVImporter{
		reader:      csvr,
		productRepo: repo,
		supplierID:  domain.ParseRef(domain.CollectionSuppliers, supplierID).ID,
		logger:      logging.OrNop(logger),
	}
}

type csvRow struct {
	line       int
	ID         string
	SupplierID string
	SKU        string
	Name       string
	Cents      int64
	SaleCents  int64
	OnSale     bool
	Quantity   int
	Currency   string
}

// Run upserts every row and returns how many products were written. The first
// invalid row stops the import; rows before it stay written.
func (i *CSVImporter) Run(ctx context.Context) (int, error) {
	headers, err := i.reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read headers: %w", err)
	}
	index := headerIndex(headers)
	if _, ok := index["id"]; !ok {
		return 0, errors.New("missing id column")
	}

	imported := 0
	line := 1
	for {
		record, err := i.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return imported, fmt.Errorf("read row %d: %w", line, err)
		}

		row, err := parseRow(record, index)
		if err != nil {
			return imported, fmt.Errorf("row %d: %w", line, err)
		}
		if row == nil {
			continue
		}
		row.line = line
		if row.SupplierID == "" {
			row.SupplierID = i.supplierID
		}
		if err := i.save(ctx, row); err != nil {
			return imported, err
		}
		imported++
	}

	i.logger.Info("importer: catalog imported", zap.Int("products", imported))
	return imported, nil
}

func (i *CSVImporter) save(ctx context.Context, row *csvRow) error {
	if row.ID == "" || row.SupplierID == "" || row.Cents <= 0 {
		return fmt.Errorf("row %d: invalid product (id, supplier and positive price required)", row.line)
	}
	if row.Quantity < 0 || row.SaleCents < 0 {
		return fmt.Errorf("row %d: negative quantity or sale price for %q", row.line, row.ID)
	}

	p := domain.Product{
		ID:             row.ID,
		SupplierID:     row.SupplierID,
		SKU:            row.SKU,
		Name:           row.Name,
		PriceCents:     row.Cents,
		SalePriceCents: row.SaleCents,
		OnSale:         row.OnSale,
		Quantity:       row.Quantity,
		Currency:       row.Currency,
	}
	if _, err := i.productRepo.Upsert(ctx, p); err != nil {
		return fmt.Errorf("upsert product %q: %w", row.ID, err)
	}
	return nil
}

func headerIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[strings.TrimSpace(h)] = i
	}
	return idx
}

// parseRow returns nil for blank rows.
func parseRow(record []string, index map[string]int) (*csvRow, error) {
	id := domain.ParseRef(domain.CollectionProducts, pick(record, index, "id")).ID
	if id == "" && pick(record, index, "name") == "" {
		return nil, nil
	}

	row := &csvRow{
		ID:         id,
		SupplierID: domain.ParseRef(domain.CollectionSuppliers, pick(record, index, "supplierId")).ID,
		SKU:        pick(record, index, "sku"),
		Name:       pick(record, index, "name"),
		Currency:   strings.ToUpper(pick(record, index, "currency")),
	}
	var err error
	if row.Cents, err = parseInt(record, index, "priceCents"); err != nil {
		return nil, err
	}
	if row.SaleCents, err = parseInt(record, index, "salePriceCents"); err != nil {
		return nil, err
	}
	qty, err := parseInt(record, index, "quantity")
	if err != nil {
		return nil, err
	}
	row.Quantity = int(qty)
	if v := pick(record, index, "onSale"); v != "" {
		if row.OnSale, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("onSale %q: %w", v, err)
		}
	}
	return row, nil
}

func parseInt(record []string, index map[string]int, key string) (int64, error) {
	v := pick(record, index, key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", key, v, err)
	}
	return n, nil
}

func pick(record []string, index map[string]int, key string) string {
	pos, ok := index[key]
	if !ok || pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}
