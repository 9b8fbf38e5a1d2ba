package extract

// Detail page selectors.
const (
	selTitle        = "h1"
	selPrice        = ".card-price"
	selContacts     = ".object-infoblock.object-contacts"
	selHidden       = "noindex"
	selContactLines = ".dit div.mb10"
	selPhoneLinks   = `a[href^="tel:"]`
	selRegionCity   = "div.header .region a"
	selInfoRows     = "table.object_info tr"
	selDescription  = ".object-infoblock .descr"
	selMap          = "#objectMap"
	selImages       = ".fotorama a[href]"
	selDate         = `.object-header span[style*="font-size"], .object-header .text-muted`
	selAreaCompact  = "span.d-none"
)

// Labels found in the page text.
const (
	labelAgency  = "Агентство недвижимости:"
	labelAddress = "Адрес"
	labelArea    = "Площадь (кв.м.)"
)

const (
	attrLat = "data-lat"
	attrLng = "data-lng"
)
