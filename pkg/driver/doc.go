// Package driver sequences an extraction run.
//
// For every amount the driver loads the invoice list, asks the page agent to
// locate and open the invoice, then walks its shipments: return to the
// invoice view when needed, open the shipment, wait for it to render and
// scrape it. Failures at any step become log entries and sentinel records;
// only export, saving the workbook, or a panic in the loop end a run as
// FATAL. Cancellation is cooperative and observed before each amount and
// each shipment.
package driver
