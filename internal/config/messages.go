package config

// Message keys. Each maps to one or more template lines rendered by the
// text package.
const (
	MsgPrefix      = "general.gts-prefix"
	MsgErrorPrefix = "general.gts-prefix-error"

	MsgMaxListings    = "general.max-listings"
	MsgAdded          = "general.addition-to-seller"
	MsgAddedBroadcast = "general.addition-broadcast"
	MsgTaxApplied     = "general.taxes.applied"
	MsgTaxInvalid     = "general.taxes.invalid"
	MsgMinPrice       = "general.prices.min-price.invalid"
	MsgPricePaid      = "general.prices.pay"
	MsgPriceReceived  = "general.prices.receive"
	MsgNotEnoughFunds = "general.purchase.not-enough-funds"
	MsgAlreadyClaimed = "general.purchase.already-claimed"

	MsgBidBroadcast = "general.auctions.bid"
	MsgBidPlaced    = "general.auctions.bid-personal"
	MsgOutbid       = "general.auctions.outbid"
	MsgWinBroadcast = "general.auctions.win"
	MsgWon          = "general.auctions.win-personal"
	MsgAuctionSold  = "general.auctions.sold"
	MsgHighBidder   = "general.auctions.is-high-bidder"
	MsgBidTooLow    = "general.auctions.bid-too-low"

	MsgReturned = "general.removal.choice"
	MsgExpired  = "general.removal.expires"

	MsgHeldEntry = "general.held.entry"
	MsgHeldPrice = "general.held.price"
	MsgClaimed   = "general.held.claimed"

	MsgItemSpec        = "entries.item.spec-template"
	MsgCreatureSpec    = "entries.creature.spec-template"
	MsgCreatureEggSpec = "entries.creature.egg-spec-template"

	LogAdd      = "logging.add-listing"
	LogRemove   = "logging.remove-listing"
	LogExpire   = "logging.listing-expires"
	LogPurchase = "logging.purchase-listing"
	LogSell     = "logging.sell-listing"
	LogBid      = "logging.bid-listing"
)

// MessageKeys is the full table of message keys and their default lines.
// Configuration files may override any entry; unknown keys are rejected.
var MessageKeys = map[string][]string{
	MsgPrefix:      {"GTS »"},
	MsgErrorPrefix: {"GTS (ERROR)"},

	MsgMaxListings:    {"{{gts_prefix}} You can't deposit another listing, since you already have {{max_listings}} deposited..."},
	MsgAdded:          {"{{gts_prefix}} Your {{listing_name}} has been added to the market!"},
	MsgAddedBroadcast: {"{{gts_prefix}} {{player}} has added a {{listing_specifics}} to the GTS for {{price}}!"},
	MsgTaxApplied:     {"- {{tax}} (Taxes)"},
	MsgTaxInvalid:     {"{{gts_prefix}} Unable to afford the tax of {{tax}} for this listing..."},
	MsgMinPrice:       {"{{gts_error}} In order to sell your {{listing_name}}, you need to list it for the price of {{min_price}}..."},
	MsgPricePaid:      {"{{gts_prefix}} You have purchased a {{listing_specifics}} for {{price}}!"},
	MsgPriceReceived:  {"{{gts_prefix}} You have received your price of {{price}} from your {{listing_name}} listing!"},
	MsgNotEnoughFunds: {"{{gts_error}} Unfortunately, you were unable to afford the price of {{price}}"},
	MsgAlreadyClaimed: {"{{gts_error}} Unfortunately, this listing has already been claimed..."},

	MsgBidBroadcast: {"{{gts_prefix}} {{player}} has placed a bid on the {{listing_specifics}}!"},
	MsgBidPlaced:    {"{{gts_prefix}} Your bid has been placed! If you win, you will pay {{price}}!"},
	MsgOutbid:       {"{{gts_prefix}} You have been outbid on the {{listing_specifics}}. Your {{price}} has been refunded."},
	MsgWinBroadcast: {"{{gts_prefix}} {{player}} has won the auction for the {{listing_specifics}}!"},
	MsgWon:          {"{{gts_prefix}} Congrats! You've won the auction on the {{listing_specifics}} for {{price}}!"},
	MsgAuctionSold:  {"{{gts_prefix}} Your {{listing_specifics}} auction was sold to {{high_bidder}} for {{price}}!"},
	MsgHighBidder:   {"{{gts_error}} Hold off! You wouldn't want to bid against yourself!"},
	MsgBidTooLow:    {"{{gts_error}} Your bid must be at least {{min_price}}."},

	MsgReturned: {"{{gts_prefix}} Your {{listing_name}} listing has been returned!"},
	MsgExpired:  {"{{gts_prefix}} Your {{listing_name}} listing has expired, and has thus been returned!"},

	MsgHeldEntry: {"{{gts_prefix}} We couldn't deliver your {{listing_name}} right now. Claim it later from the GTS."},
	MsgHeldPrice: {"{{gts_prefix}} We couldn't deliver {{price}} right now. Claim it later from the GTS."},
	MsgClaimed:   {"{{gts_prefix}} Delivered {{count}} held item(s) and payment(s)."},

	MsgItemSpec:        {"{{item_title}}"},
	MsgCreatureSpec:    {"{{shiny}}{{creature}} (Lv {{level}}, {{ivs_percent}} IVs)"},
	MsgCreatureEggSpec: {"{{creature}}"},

	LogAdd:      {"List Price: {{price}}"},
	LogRemove:   {"Element: {{listing_specifics}}"},
	LogExpire:   {"Element: {{listing_specifics}}"},
	LogPurchase: {"Seller: {{seller}}", "Price: {{price}}", "Received: {{listing_specifics}}"},
	LogSell:     {"Buyer: {{buyer}}", "Price: {{price}}", "Sold: {{listing_specifics}}"},
	LogBid:      {"Bid: {{price}}", "Element: {{listing_specifics}}"},
}
