package tiff

// Tag ids used by the pyramid writer.
const (
	TagNewSubfileType            = 254
	TagImageWidth                = 256
	TagImageLength               = 257
	TagBitsPerSample             = 258
	TagCompression               = 259
	TagPhotometricInterpretation = 262
	TagDocumentName              = 269
	TagSamplesPerPixel           = 277
	TagSoftware                  = 305
	TagPredictor                 = 317
	TagTileWidth                 = 322
	TagTileLength                = 323
	TagTileOffsets               = 324
	TagTileByteCounts            = 325
	TagSampleFormat              = 339
	TagJPEGTables                = 347
)

// Field types.
const (
	typeByte      = 1
	typeASCII     = 2
	typeShort     = 3
	typeLong      = 4
	typeUndefined = 7
	typeLong8     = 16
)

// Compression schemes.
const (
	CompressionJPEG    = 7
	CompressionDeflate = 8
)

// PhotometricInterpretation values.
const (
	PhotometricRGB   = 2
	PhotometricYCbCr = 6
)

// NewSubfileType flags.
const (
	SubfileReducedImage = 1
)

// SampleFormat values.
const (
	SampleFormatUint = 1
)

// BigTIFFPixelThreshold is the pixel count above which output switches to
// BigTIFF (2^29).
const BigTIFFPixelThreshold = int64(1) << 29
