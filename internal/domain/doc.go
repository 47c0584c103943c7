// Package domain models the canonical in-memory data for gridded
// meteorological bias correction.
//
// # Data Sources
//
// Three heterogeneous sources meet here, all supplied by ingestion
// collaborators that handle file formats (NetCDF grids, CSV station archives,
// DEM rasters) outside this module:
//
//   - Grid fields: 2-D arrays of one variable at one timestamp, georeferenced
//     by a regular lat/lon grid (see [GridRef]). Reanalysis or NWP output,
//     typically hourly, e.g. a 460x800 national mosaic.
//   - Station observations: ground-truth point measurements keyed by
//     (station, variable, timestamp). Timestamps are aligned to the grid's
//     temporal resolution upstream; the core performs no resampling.
//   - Terrain: a static elevation raster on the same grid, from which slope
//     and aspect are derived once (see [NewTerrainField]).
//
// # Conventions
//
// Timestamps are UTC. Grid values use an explicit missing-value sentinel
// (NaN also counts as missing); missing readings are representable and are
// excluded from training, never imputed. Station archives encode unusable
// readings with values above 9999 — [SanitizeObservation] turns those into
// missing values.
//
// Grid georeferencing follows the source rasters: OriginLat/OriginLon is the
// center of cell (0,0), rows advance north (increasing latitude) and columns
// advance east. Cell sizes are positive degrees; ingestion normalizes
// descending-latitude files before they reach the core.
//
// # Correction Model
//
// The quantity learned per (station, variable) key is the residual: station
// value minus raw grid value at the station's location. Corrected value =
// raw grid value + predicted residual, so an uninformative model degrades
// toward the uncorrected grid instead of corrupting it. Models are immutable
// once trained; retraining supersedes the registry entry rather than
// mutating it.
package domain
