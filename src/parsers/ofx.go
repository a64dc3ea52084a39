package parsers

import (
	"bytes"
	"fmt"

	"github.com/aclindsa/ofxgo"
	"github.com/username/petshop/backend/src/logger"
	"github.com/username/petshop/backend/src/models"
)

// ReadOFXRows extracts <STMTTRN> blocks from an OFX statement and exposes
// them as raw rows keyed by OFX tag name, so the same row transformer and
// template machinery handles OFX and CSV uniformly.
func ReadOFXRows(content []byte) ([]models.RawRow, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, ErrEmptyFile
	}

	resp, err := ofxgo.ParseResponse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parsing OFX file: %w", err)
	}

	var rows []models.RawRow
	n := 0

	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok {
			logger.L.Warn("Unexpected OFX bank message type", "type", fmt.Sprintf("%T", msg))
			continue
		}
		if stmt.BankTranList == nil {
			continue
		}
		for _, tx := range stmt.BankTranList.Transactions {
			n++
			rows = append(rows, ofxTransactionRow(n, tx))
		}
	}

	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok {
			logger.L.Warn("Unexpected OFX credit card message type", "type", fmt.Sprintf("%T", msg))
			continue
		}
		if stmt.BankTranList == nil {
			continue
		}
		for _, tx := range stmt.BankTranList.Transactions {
			n++
			rows = append(rows, ofxTransactionRow(n, tx))
		}
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("OFX file has no bank or credit card transactions")
	}
	return rows, nil
}

func ofxTransactionRow(n int, tx ofxgo.Transaction) models.RawRow {
	return models.RawRow{
		Number: n,
		Values: map[string]string{
			"FITID":    string(tx.FiTID),
			"DTPOSTED": tx.DtPosted.Format("2006-01-02"),
			"TRNAMT":   tx.TrnAmt.FloatString(2),
			"TRNTYPE":  tx.TrnType.String(),
			"NAME":     string(tx.Name),
			"MEMO":     string(tx.Memo),
			"CHECKNUM": string(tx.CheckNum),
		},
	}
}
