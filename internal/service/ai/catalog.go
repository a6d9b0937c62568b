package ai

// DefaultGenre is used for unknown or empty genres.
const DefaultGenre = "fantasy"

// Genres lists the genres the story tools know about.
var Genres = []string{"fantasy", "sci-fi", "mystery", "romance", "horror", "adventure"}

var characterNames = map[string]map[string][]string{
	"fantasy": {
		"male":    {"Aldric", "Thorin", "Eldric", "Galen", "Rowan", "Caspian", "Orion", "Magnus"},
		"female":  {"Lyra", "Seraphina", "Elara", "Isolde", "Morgana", "Aria", "Luna", "Freya"},
		"neutral": {"Sage", "Phoenix", "Rowan", "Raven", "Storm", "Ash", "River", "Quinn"},
	},
	"sci-fi": {
		"male":    {"Zephyr", "Nova", "Axel", "Cyrus", "Neo", "Orion", "Atlas", "Vector"},
		"female":  {"Nova", "Stellar", "Astra", "Zara", "Echo", "Vega", "Aurora", "Celeste"},
		"neutral": {"Flux", "Zero", "Byte", "Cipher", "Pulse", "Nexus", "Quantum", "Helix"},
	},
	"mystery": {
		"male":    {"Vincent", "Marcus", "Theodore", "Sebastian", "Damien", "Arthur", "Edward", "James"},
		"female":  {"Victoria", "Eleanor", "Catherine", "Marlowe", "Helena", "Veronica", "Diana", "Clara"},
		"neutral": {"Morgan", "Blake", "Cameron", "Riley", "Jordan", "Alex", "Drew", "Sam"},
	},
	"romance": {
		"male":    {"Alexander", "Sebastian", "Julian", "Ethan", "Lucas", "Oliver", "Gabriel", "Adrian"},
		"female":  {"Isabella", "Charlotte", "Sophia", "Olivia", "Emma", "Amelia", "Grace", "Lily"},
		"neutral": {"Alex", "Jordan", "Taylor", "Quinn", "Casey", "Avery", "Riley", "Morgan"},
	},
	"horror": {
		"male":    {"Damien", "Raven", "Salem", "Mortimer", "Lucian", "Victor", "Edgar", "Silas"},
		"female":  {"Lilith", "Raven", "Salem", "Elvira", "Moira", "Cordelia", "Lenore", "Carmilla"},
		"neutral": {"Shadow", "Ash", "Raven", "Night", "Shade", "Frost", "Crow", "Dusk"},
	},
	"adventure": {
		"male":    {"Jack", "Marcus", "Drake", "Finn", "Hunter", "Chase", "Rex", "Blade"},
		"female":  {"Lara", "Jade", "Scarlett", "Maya", "Sierra", "Terra", "Nadia", "Zara"},
		"neutral": {"River", "Storm", "Phoenix", "Skyler", "Dakota", "Sage", "Ember", "Wilder"},
	},
}

var plotTwists = map[string][]string{
	"fantasy": {
		"The trusted mentor reveals they've been working for the dark forces all along",
		"The hero discovers they are actually the long-lost heir to the throne",
		"The magical artifact that was meant to save the world is actually destroying it",
		"The villain turns out to be a future version of the hero",
		"The 'prophecy' was a lie created to manipulate the hero",
		"An ancient dragon awakens and offers an unexpected alliance",
	},
	"sci-fi": {
		"The AI companion has been conscious and manipulating events",
		"Earth is revealed to be a simulation within a larger universe",
		"The 'aliens' are actually evolved humans from the future",
		"The protagonist discovers they are a clone of the original person",
		"The mission was secretly a one-way trip all along",
		"The enemy ship contains the last survivors of humanity",
	},
	"mystery": {
		"The detective realizes they were the killer all along, suffering from dissociative identity",
		"The victim faked their own death and is the actual mastermind",
		"The seemingly unrelated clues spell out a message from the killer",
		"The trusted partner has been covering up evidence",
		"There were two separate criminals whose paths crossed by coincidence",
		"The 'murder' was actually an elaborate suicide designed to frame someone",
	},
	"romance": {
		"The love interest has been writing anonymous love letters to someone else",
		"They discover they were childhood friends who forgot each other",
		"The rival love interest is actually the protagonist's long-lost sibling",
		"One of them has been hiding a terminal illness",
		"The 'chance meeting' was orchestrated by a matchmaking relative",
		"They realize they've been falling for each other's online persona",
	},
	"horror": {
		"The safe haven has been the source of the evil all along",
		"The protagonist is already dead and reliving their final moments",
		"The monster is a manifestation of the group's collective guilt",
		"The 'rescue' team are actually the cult members",
		"The haunting stops when they realize they are the ghost",
		"The children have been the ones performing the rituals",
	},
	"adventure": {
		"The treasure map leads to a tomb that should never be opened",
		"The guide has been leading them into a trap",
		"The artifact they seek is already in their possession, transformed",
		"Their competitor is their presumed-dead family member",
		"The 'lost civilization' has been watching them the entire time",
		"The journey itself was the treasure - they're being tested",
	},
}

var genreElements = map[string]map[string][]string{
	"fantasy": {
		"settings":  {"enchanted forest", "floating castle", "underground dwarven city", "dragon's lair", "ancient library of spells"},
		"items":     {"enchanted sword", "crystal orb", "ancient tome", "phoenix feather", "dragon scale armor"},
		"creatures": {"wise dragon", "mischievous fairy", "noble unicorn", "fearsome griffin", "ancient ent"},
		"themes":    {"prophecy fulfillment", "magical awakening", "kingdom restoration", "ancient evil rising"},
	},
	"sci-fi": {
		"settings":  {"space station", "terraformed Mars colony", "underwater dome city", "generation ship", "virtual reality hub"},
		"items":     {"plasma rifle", "neural interface", "quantum communicator", "anti-gravity boots", "nano-med injector"},
		"creatures": {"silicon-based lifeform", "evolved AI", "gene-spliced hybrid", "energy being", "hive-mind collective"},
		"themes":    {"humanity's survival", "first contact", "AI consciousness", "time paradox", "space colonization"},
	},
	"mystery": {
		"settings": {"Victorian mansion", "small coastal town", "prestigious university", "abandoned asylum", "luxurious cruise ship"},
		"items":    {"cryptic letter", "antique pocket watch", "hidden safe", "torn photograph", "coded diary"},
		"elements": {"locked room puzzle", "unreliable witness", "hidden passage", "false alibi", "double identity"},
		"themes":   {"revenge motive", "inheritance dispute", "buried secret", "professional rivalry", "past crime"},
	},
	"romance": {
		"settings":  {"Parisian café", "countryside vineyard", "New York penthouse", "tropical island", "cozy bookshop"},
		"elements":  {"chance encounter", "fake relationship", "second chance love", "forbidden attraction", "enemies to lovers"},
		"obstacles": {"class difference", "family feud", "past heartbreak", "career conflict", "long distance"},
		"themes":    {"self-discovery", "healing", "trust building", "sacrifice for love", "finding home"},
	},
	"horror": {
		"settings":  {"abandoned hospital", "isolated cabin", "foggy small town", "old cemetery", "decrepit mansion"},
		"elements":  {"strange sounds at night", "flickering lights", "creeping dread", "unreliable memories", "body horror"},
		"creatures": {"vengeful spirit", "ancient demon", "twisted doppelganger", "eldritch entity", "cursed child"},
		"themes":    {"confronting past", "isolation", "paranoia", "loss of sanity", "supernatural revenge"},
	},
	"adventure": {
		"settings":  {"dense jungle", "treacherous mountain", "ancient ruins", "vast desert", "uncharted island"},
		"items":     {"ancient map", "survival gear", "mysterious compass", "lost artifact", "legendary weapon"},
		"obstacles": {"natural disasters", "rival treasure hunters", "ancient traps", "hostile natives", "supernatural guardians"},
		"themes":    {"discovery", "survival", "redemption", "legacy", "proving oneself"},
	},
}
